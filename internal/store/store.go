// Package store описывает узкий контракт документного хранилища и аллокатора
// последовательностей, которыми пользуется ядро.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// KeyField — первичный ключ документа в любой коллекции.
const KeyField = "_id"

// Document — JSON-совместимый документ.
type Document map[string]any

// Filter — условие равенства по полям верхнего уровня. Пустой фильтр — все документы.
type Filter map[string]any

var (
	ErrNoDocument   = errors.New("no document")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrMissingKey   = errors.New("document has no _id")
)

// Store — документное хранилище. Коллекция создаётся при первой записи.
type Store interface {
	FindOne(ctx context.Context, collection string, filter Filter) (Document, error)
	Find(ctx context.Context, collection string, filter Filter) ([]Document, error)
	InsertOne(ctx context.Context, collection string, doc Document) error
	InsertMany(ctx context.Context, collection string, docs []Document) error
	// UpdateOne выставляет поля set у первого подходящего документа; возвращает число совпавших (0 или 1).
	UpdateOne(ctx context.Context, collection string, filter Filter, set Document) (int64, error)
	DeleteOne(ctx context.Context, collection string, filter Filter) (int64, error)
	DeleteMany(ctx context.Context, collection string, filter Filter) (int64, error)
	CountDocuments(ctx context.Context, collection string, filter Filter) (int64, error)
	CreateIndex(ctx context.Context, collection, field string, unique bool) error
}

// Sequencer — атомарный монотонный счётчик на объект, начинается с 1.
type Sequencer interface {
	Next(ctx context.Context, objectID string) (int64, error)
}

// Encode превращает структуру в Document через её JSON-представление.
func Encode(v any) (Document, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var d Document
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return d, nil
}

// Decode — обратная операция к Encode.
func Decode(d Document, v any) error {
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// KeyOf достаёт _id документа.
func KeyOf(d Document) (string, error) {
	id, _ := d[KeyField].(string)
	if id == "" {
		return "", ErrMissingKey
	}
	return id, nil
}
