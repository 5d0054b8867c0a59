// Package backup exports and restores the medication list as YAML.
package backup

import (
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	apperrors "github.com/avelar-dev/medikit/internal/errors"
	"github.com/avelar-dev/medikit/internal/medication"
)

const formatVersion = 1

// Archive is the on-disk backup document.
type Archive struct {
	Version     int                     `yaml:"version"`
	ExportedAt  time.Time               `yaml:"exported_at"`
	Medications []medication.Medication `yaml:"medications"`
}

// Service reads and writes backup archives against the repository.
type Service struct {
	repo   *medication.Repository
	logger *zap.Logger
}

func New(repo *medication.Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Export writes the current medication list as a YAML archive.
func (s *Service) Export(w io.Writer) error {
	list, err := s.repo.List()
	if err != nil {
		return err
	}

	archive := Archive{
		Version:     formatVersion,
		ExportedAt:  time.Now().UTC(),
		Medications: list,
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(archive); err != nil {
		return apperrors.Wrap(err, apperrors.ErrStorage, "failed to encode backup")
	}
	return enc.Close()
}

// Import replaces the stored list with the archive's contents. Alert
// handles are dropped on restore; run a repair afterwards to
// re-register platform alerts.
func (s *Service) Import(r io.Reader) (int, error) {
	var archive Archive
	if err := yaml.NewDecoder(r).Decode(&archive); err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrValidation, "malformed backup file")
	}
	if archive.Version != formatVersion {
		return 0, apperrors.Wrap(fmt.Errorf("version %d", archive.Version), apperrors.ErrValidation, "unsupported backup version")
	}
	for i := range archive.Medications {
		med := &archive.Medications[i]
		if med.ID == "" || med.Name == "" {
			return 0, apperrors.Wrap(fmt.Errorf("record %d", i), apperrors.ErrValidation, "backup record missing id or name")
		}
		if med.HasRule() {
			if err := med.Rule.Validate(); err != nil {
				return 0, err
			}
		}
	}

	if err := s.repo.Replace(archive.Medications); err != nil {
		return 0, err
	}
	s.logger.Info("Backup imported", zap.Int("medications", len(archive.Medications)))
	return len(archive.Medications), nil
}
