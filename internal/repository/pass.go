package repository

import (
	"errors"
	"replisync/internal/db"
	"replisync/internal/model"
)

var ErrHistoryDisabled = errors.New("pass history is disabled, set db_path to enable it")

type PassRepository struct{}

func NewPassRepository() *PassRepository {
	return &PassRepository{}
}

func (r *PassRepository) Save(pass model.Pass) error {
	if !db.Enabled() {
		return ErrHistoryDisabled
	}

	return db.DB.Create(&pass).Error
}

func (r *PassRepository) GetStats() (model.PassStats, error) {
	var stats model.PassStats
	if !db.Enabled() {
		return stats, ErrHistoryDisabled
	}

	if err := db.DB.Model(&model.Pass{}).Count(&stats.Total).Error; err != nil {
		return stats, err
	}

	if err := db.DB.Model(&model.Pass{}).
		Where("status = ?", model.PassSuccess).
		Count(&stats.Success).Error; err != nil {
		return stats, err
	}

	stats.Failed = stats.Total - stats.Success
	return stats, nil
}

func (r *PassRepository) GetRecent(limit int) ([]model.Pass, error) {
	if !db.Enabled() {
		return nil, ErrHistoryDisabled
	}

	var passes []model.Pass
	result := db.DB.
		Order("finished_at desc").
		Limit(limit).
		Find(&passes)

	return passes, result.Error
}

func (r *PassRepository) GetFailed(limit int) ([]model.Pass, error) {
	if !db.Enabled() {
		return nil, ErrHistoryDisabled
	}

	var passes []model.Pass
	result := db.DB.
		Where("status = ?", model.PassFailed).
		Order("finished_at desc").
		Limit(limit).
		Find(&passes)

	return passes, result.Error
}
