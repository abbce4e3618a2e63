package output

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"portsweep/scanner"
)

// Record is the externally visible form of one probe outcome.
type Record struct {
	IP     string `json:"ip" example:"192.0.2.10"`
	Port   uint16 `json:"port" example:"443"`
	Status string `json:"status" enums:"OPEN,CLOSED,ERROR" example:"OPEN"`
	Reason string `json:"reason,omitempty" example:"connection refused"`
}

// Options controls how outcomes are rendered.
type Options struct {
	// TwoStatus folds ERROR into CLOSED for consumers that only understand
	// OPEN/CLOSED. The folded causes are logged instead of emitted.
	TwoStatus bool
	Logger    *slog.Logger
}

// Records converts a result set into ordered output records.
func Records(rs *scanner.ResultSet, opts Options) []Record {
	ip := rs.Target().String()
	records := make([]Record, 0, rs.Len())
	for o := range rs.All() {
		rec := Record{IP: ip, Port: o.Port, Status: string(o.Status), Reason: o.Reason}
		if opts.TwoStatus {
			if o.Status == scanner.StatusError {
				rec.Status = string(scanner.StatusClosed)
				if opts.Logger != nil {
					opts.Logger.Warn("probe error reported as CLOSED", "ip", ip, "port", o.Port, "reason", o.Reason)
				}
			}
			rec.Reason = ""
		}
		records = append(records, rec)
	}
	return records
}

// WriteJSON encodes records as a JSON array.
func WriteJSON(w io.Writer, records []Record) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return nil
}

// WritePlain prints one human readable line per record.
func WritePlain(w io.Writer, records []Record) error {
	for _, r := range records {
		var err error
		if r.Reason != "" && r.Status != string(scanner.StatusOpen) {
			_, err = fmt.Fprintf(w, "%s:%d - %s (%s)\n", r.IP, r.Port, r.Status, r.Reason)
		} else {
			_, err = fmt.Fprintf(w, "%s:%d - %s\n", r.IP, r.Port, r.Status)
		}
		if err != nil {
			return fmt.Errorf("write results: %w", err)
		}
	}
	return nil
}

// WriteFile stores records as JSON at path atomically.
func WriteFile(path string, records []Record) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return WriteAtomic(path, data)
}

// WriteAtomic writes data to path atomically:
//   - create temp file in same directory
//   - write bytes, fsync, close
//   - rename to final path (overwrite)
//
// On failure the temp file is removed and an error returned.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".portsweep-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}

	// Rename into place (atomic on POSIX).
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp -> final: %w", err)
	}
	return nil
}
