package domain

import (
	"errors"
	"time"
)

// ErrFeedbackNotFound возвращается, когда обращение не найдено.
var ErrFeedbackNotFound = errors.New("feedback not found")

// AttachmentKind описывает тип вложения.
type AttachmentKind string

const (
	AttachmentPhoto    AttachmentKind = "photo"
	AttachmentDocument AttachmentKind = "document"
)

// AttachmentRef ссылается на файл на стороне Telegram до скачивания.
type AttachmentRef struct {
	FileID   string
	UniqueID string
	Kind     AttachmentKind
	FileName string
}

// Attachment описывает сохранённый файл.
type Attachment struct {
	Path string         `json:"path"`
	Kind AttachmentKind `json:"kind"`
}

// Identity содержит контактные данные, которые пользователь решил раскрыть.
type Identity struct {
	Name  string
	Phone string
}

// FeedbackRecord содержит всё, что нужно сохранить по обращению.
type FeedbackRecord struct {
	Message     string
	Branch      string
	Identity    *Identity
	Attachments []Attachment
}

// Feedback представляет сохранённое обращение.
type Feedback struct {
	ID          int64
	Message     string
	Branch      string
	Name        string
	Phone       string
	Attachments []Attachment
	CreatedAt   time.Time
}

// AdminNotification описывает уведомление администратору о новом обращении.
type AdminNotification struct {
	FeedbackID  int64        `json:"feedback_id"`
	Text        string       `json:"text"`
	Branch      string       `json:"branch,omitempty"`
	Name        string       `json:"name,omitempty"`
	Phone       string       `json:"phone,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}
