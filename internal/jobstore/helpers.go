package jobstore

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

// timeLayout is fixed width so stored values sort chronologically as text.
const timeLayout = "2006-01-02T15:04:05.000000Z"

const jobColumns = "id, user_id, source, source_language, target_language, mode, status, stage, progress_percent, progress_message, error_kind, error_stage, error_message, video_url, subtitle_url, transcription, translation, detected_language, workspace, created_at, updated_at, finished_at, expires_at"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return formatTime(*value)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job                                                  Job
		status                                               string
		progressMessage, errorKind, errorStage, errorMessage sql.NullString
		videoURL, subtitleURL, transcription, translation    sql.NullString
		detectedLanguage, workspace, createdRaw, updatedRaw  sql.NullString
		finishedRaw, expiresRaw                              sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&job.UserID,
		&job.Source,
		&job.SourceLanguage,
		&job.TargetLanguage,
		&job.Mode,
		&status,
		&job.Stage,
		&job.ProgressPercent,
		&progressMessage,
		&errorKind,
		&errorStage,
		&errorMessage,
		&videoURL,
		&subtitleURL,
		&transcription,
		&translation,
		&detectedLanguage,
		&workspace,
		&createdRaw,
		&updatedRaw,
		&finishedRaw,
		&expiresRaw,
	); err != nil {
		return nil, err
	}
	job.Status = Status(status)
	job.ProgressMessage = progressMessage.String
	job.ErrorKind = errorKind.String
	job.ErrorStage = errorStage.String
	job.ErrorMessage = errorMessage.String
	job.VideoURL = videoURL.String
	job.SubtitleURL = subtitleURL.String
	job.Transcription = transcription.String
	job.Translation = translation.String
	job.DetectedLanguage = detectedLanguage.String
	job.Workspace = workspace.String

	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			job.FinishedAt = &finished
		}
	}
	if expiresRaw.Valid {
		if expires, err := parseTimeString(expiresRaw.String); err == nil {
			job.ExpiresAt = &expires
		}
	}
	return &job, nil
}
