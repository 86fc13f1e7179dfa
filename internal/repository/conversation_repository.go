package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/clippy-oss/homie/inbox-bridge/internal/domain"
)

const orderByRecent = "last_message_at DESC, position ASC"

type gormConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &gormConversationRepository{db: db}
}

func (r *gormConversationRepository) ReplaceAll(ctx context.Context, convs []*domain.ConversationSummary) error {
	models := make([]*ConversationModel, 0, len(convs))
	seen := make(map[string]bool, len(convs))
	for _, c := range convs {
		if c == nil || c.ID == "" || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		m := ConversationDomainToModel(c, len(models))
		m.LastMessageAt = m.LastMessageAt.UTC()
		models = append(models, m)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&ConversationModel{}).Error; err != nil {
			return err
		}
		if len(models) == 0 {
			return nil
		}
		return tx.CreateInBatches(models, 100).Error
	})
}

func (r *gormConversationRepository) GetByID(ctx context.Context, id string) (*domain.ConversationSummary, error) {
	var model ConversationModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return ConversationModelToDomain(&model), nil
}

func (r *gormConversationRepository) GetAll(ctx context.Context, limit, offset int) ([]*domain.ConversationSummary, error) {
	query := r.db.WithContext(ctx).Order(orderByRecent)

	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}

	return r.find(query)
}

// Search matches query case-insensitively against counterpart names and
// listing titles.
func (r *gormConversationRepository) Search(ctx context.Context, query string, limit int) ([]*domain.ConversationSummary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return r.GetAll(ctx, limit, 0)
	}

	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	q := r.db.WithContext(ctx).
		Where(`LOWER(counterpart_name) LIKE ? ESCAPE '\' OR LOWER(listing_title) LIKE ? ESCAPE '\'`, pattern, pattern).
		Order(orderByRecent)
	if limit > 0 {
		q = q.Limit(limit)
	}

	return r.find(q)
}

func (r *gormConversationRepository) find(query *gorm.DB) ([]*domain.ConversationSummary, error) {
	var models []ConversationModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	convs := make([]*domain.ConversationSummary, len(models))
	for i := range models {
		convs[i] = ConversationModelToDomain(&models[i])
	}
	return convs, nil
}

func (r *gormConversationRepository) UpdateLastMessage(ctx context.Context, id, text string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&ConversationModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_message_text": text,
			"last_message_at":   at.UTC(),
		})
	return res.RowsAffected > 0, res.Error
}

func (r *gormConversationRepository) IncrementUnreadCount(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&ConversationModel{}).
		Where("id = ?", id).
		UpdateColumn("unread_count", gorm.Expr("unread_count + ?", 1)).Error
}

func (r *gormConversationRepository) UpdateUnreadCount(ctx context.Context, id string, count int) (bool, error) {
	if count < 0 {
		count = 0
	}
	res := r.db.WithContext(ctx).
		Model(&ConversationModel{}).
		Where("id = ?", id).
		UpdateColumn("unread_count", count)
	return res.RowsAffected > 0, res.Error
}

func (r *gormConversationRepository) SetCounterpartOnline(ctx context.Context, counterpartID string, online bool) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&ConversationModel{}).
		Where("counterpart_id = ?", counterpartID).
		UpdateColumn("counterpart_online", online)
	return res.RowsAffected, res.Error
}

func (r *gormConversationRepository) TotalUnread(ctx context.Context) (int, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&ConversationModel{}).
		Select("COALESCE(SUM(CASE WHEN unread_count > 0 THEN unread_count ELSE 0 END), 0)").
		Scan(&total).Error
	return int(total), err
}

func (r *gormConversationRepository) Count(ctx context.Context) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&ConversationModel{}).Count(&n).Error
	return int(n), err
}

func (r *gormConversationRepository) Delete(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&ConversationModel{})
	return res.RowsAffected > 0, res.Error
}

func (r *gormConversationRepository) DeleteAll(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&ConversationModel{}).Error
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
