package store

import (
	"database/sql"
	"fmt"

	"github.com/BTreeMap/StudyPipe/internal/models"
)

// studyColumns is the select list shared by both SQL backends, in scan order.
const studyColumns = `id, title, description, study_type, objective, target_audience, interview_questions, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanStudy scans a Study from a row selected with studyColumns.
func scanStudy(row rowScanner) (models.Study, error) {
	var s models.Study
	var status string
	err := row.Scan(
		&s.ID, &s.Title, &s.Description, &s.StudyType, &s.Objective, &s.TargetAudience,
		&s.InterviewQuestions, &status, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return s, err
	}
	s.Status = models.StudyStatus(status)
	return s, nil
}

// scanStudies drains rows into a slice.
func scanStudies(rows *sql.Rows) ([]models.Study, error) {
	defer rows.Close()
	studies := []models.Study{}
	for rows.Next() {
		s, err := scanStudy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan study failed: %w", err)
		}
		studies = append(studies, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate study rows: %w", err)
	}
	return studies, nil
}

// fieldColumn maps a validated field onto its column name. The field names are
// the column names, so only validation is needed before interpolation.
func fieldColumn(field models.FieldName) (string, error) {
	if !models.IsValidField(field) {
		return "", models.ErrUnknownField
	}
	return string(field), nil
}

// checkAffected maps a zero-row update onto ErrStudyNotFound.
func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrStudyNotFound
	}
	return nil
}
