package port

import "context"

// BatchArchive определяет интерфейс для архивирования подтвержденных пачек.
type BatchArchive interface {
	// PutObject сохраняет объект под ключом key.
	PutObject(ctx context.Context, key, contentType string, body []byte) error
}
