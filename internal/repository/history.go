package repository

import (
	"fetchrelay/internal/db"
	"fetchrelay/internal/model"
)

type HistoryRepository struct{}

func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{}
}

func (r *HistoryRepository) Save(h *model.History) error {
	return db.DB.Create(h).Error
}

type Stats struct {
	Total     int64 `json:"total"`
	Done      int64 `json:"done"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
	Bytes     int64 `json:"bytes"`
}

func (r *HistoryRepository) GetStats() (Stats, error) {
	var stats Stats
	if err := db.DB.Model(&model.History{}).Count(&stats.Total).Error; err != nil {
		return stats, err
	}

	if err := db.DB.Model(&model.History{}).
		Where("state = ?", model.StateDone).
		Count(&stats.Done).Error; err != nil {
		return stats, err
	}

	if err := db.DB.Model(&model.History{}).
		Where("state = ?", model.StateCancelled).
		Count(&stats.Cancelled).Error; err != nil {
		return stats, err
	}

	if err := db.DB.Model(&model.History{}).
		Where("state = ?", model.StateDone).
		Select("COALESCE(SUM(size), 0)").
		Scan(&stats.Bytes).Error; err != nil {
		return stats, err
	}

	stats.Failed = stats.Total - stats.Done - stats.Cancelled
	return stats, nil
}

func (r *HistoryRepository) GetRecent(limit int) ([]model.History, error) {
	var histories []model.History
	result := db.DB.
		Order("finished_at desc").
		Limit(limit).
		Find(&histories)

	return histories, result.Error
}

func (r *HistoryRepository) GetFailed() ([]model.History, error) {
	var histories []model.History
	result := db.DB.
		Where("state = ?", model.StateError).
		Order("finished_at desc").
		Find(&histories)

	return histories, result.Error
}
