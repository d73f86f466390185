package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"feedback-bot/internal/domain"
	"feedback-bot/internal/infra/metrics"
)

const downloadTimeout = time.Minute

// ErrEmptyFileID возвращается для ссылки без идентификатора файла.
var ErrEmptyFileID = errors.New("пустой идентификатор файла")

// URLResolver выдаёт прямую ссылку на файл. *tgbotapi.BotAPI удовлетворяет интерфейсу.
type URLResolver interface {
	GetFileDirectURL(fileID string) (string, error)
}

// TelegramStore скачивает вложения из Telegram в локальный каталог.
// Файл сохраняется как <dir>/<kind>/<unique_id><ext>, уже скачанный файл переиспользуется.
type TelegramStore struct {
	resolver URLResolver
	client   *http.Client
	dir      string
	log      zerolog.Logger
}

var _ domain.AttachmentStore = (*TelegramStore)(nil)

// NewTelegramStore создаёт хранилище вложений.
func NewTelegramStore(resolver URLResolver, dir string, log zerolog.Logger) *TelegramStore {
	return &TelegramStore{
		resolver: resolver,
		client:   &http.Client{Timeout: downloadTimeout},
		dir:      dir,
		log:      log,
	}
}

// ResolveAndStore скачивает файл и возвращает путь к нему.
func (s *TelegramStore) ResolveAndStore(ctx context.Context, ref domain.AttachmentRef) (domain.Attachment, error) {
	name := safeName(ref.UniqueID)
	if name == "" {
		name = safeName(ref.FileID)
	}
	if name == "" || ref.FileID == "" {
		return domain.Attachment{}, ErrEmptyFileID
	}
	kind := ref.Kind
	if kind == "" {
		kind = domain.AttachmentDocument
	}
	kindDir := filepath.Join(s.dir, string(kind))

	if existing, ok := s.existing(kindDir, name); ok {
		return domain.Attachment{Path: existing, Kind: kind}, nil
	}

	start := time.Now()
	link, err := s.resolver.GetFileDirectURL(ref.FileID)
	metrics.ObserveNetworkRequest("telegram_bot", "get_file", string(kind), start, err)
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("получение ссылки на файл: %w", err)
	}

	if err := os.MkdirAll(kindDir, 0o755); err != nil {
		return domain.Attachment{}, fmt.Errorf("создание каталога: %w", err)
	}
	target := filepath.Join(kindDir, name+extension(ref, link))

	start = time.Now()
	err = s.download(ctx, link, target)
	metrics.ObserveNetworkRequest("telegram_file", "download", string(kind), start, err)
	if err != nil {
		return domain.Attachment{}, err
	}
	s.log.Debug().Str("path", target).Msg("файл сохранён")
	return domain.Attachment{Path: target, Kind: kind}, nil
}

func (s *TelegramStore) existing(kindDir, name string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(kindDir, name+"*"))
	if err != nil {
		return "", false
	}
	for _, m := range matches {
		base := filepath.Base(m)
		if strings.HasPrefix(base, ".") {
			continue
		}
		if strings.TrimSuffix(base, filepath.Ext(base)) == name {
			return m, true
		}
	}
	return "", false
}

// download пишет во временный файл и переименовывает его, чтобы
// параллельная загрузка того же файла не оставила обрезанный результат.
func (s *TelegramStore) download(ctx context.Context, link, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return fmt.Errorf("запрос файла: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("скачивание файла: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("скачивание файла: статус %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".download-*")
	if err != nil {
		return fmt.Errorf("временный файл: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("запись файла: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("запись файла: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("сохранение файла: %w", err)
	}
	return nil
}

func extension(ref domain.AttachmentRef, link string) string {
	if ext := filepath.Ext(ref.FileName); ext != "" {
		return strings.ToLower(ext)
	}
	if u, err := url.Parse(link); err == nil {
		if ext := path.Ext(u.Path); ext != "" {
			return strings.ToLower(ext)
		}
	}
	if ref.Kind == domain.AttachmentPhoto {
		return ".jpg"
	}
	return ""
}

func safeName(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}
