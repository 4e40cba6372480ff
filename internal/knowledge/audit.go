package knowledge

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// auditHeader is the fixed column set of the learning progress log.
var auditHeader = []string{
	"timestamp", "image_path", "company_detected", "confidence",
	"data_fields_found", "gps_validation", "route_match",
	"learning_outcome", "total_processed",
}

// AuditLog appends one CSV row per learning session to a progress file.
type AuditLog struct {
	path string
}

// NewAuditLog creates the log file with its header if it does not exist.
func NewAuditLog(path string) (*AuditLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("create audit log: %w", err)
		}
		w := csv.NewWriter(f)
		if err := w.Write(auditHeader); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write audit header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write audit header: %w", err)
		}
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("create audit log: %w", err)
		}
	}

	return &AuditLog{path: path}, nil
}

// Append writes one session row.
func (a *AuditLog) Append(session Session, totalProcessed int) error {
	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	err = w.Write([]string{
		session.Timestamp.Format(time.RFC3339),
		session.ImageRef,
		session.Carrier,
		strconv.FormatFloat(session.Confidence, 'f', -1, 64),
		strconv.Itoa(len(session.Fields)),
		strconv.FormatBool(session.GPSValidation),
		strconv.FormatBool(session.RouteMatch),
		session.LearningOutcome,
		strconv.Itoa(totalProcessed),
	})
	if err != nil {
		return fmt.Errorf("write audit row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write audit row: %w", err)
	}
	return nil
}
