package claim

import (
	"context"
	"fmt"
	"strings"
)

// Page size bounds for List.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// ListFilter controls which devices List returns.
type ListFilter struct {
	Claimed *bool // optional: only claimed (true) or unclaimed (false) devices
	Limit   int   // default 50, max 200
	Offset  int
}

// DevicePage is one page of devices, newest first.
type DevicePage struct {
	Devices []DeviceRecord `json:"devices"`
	Total   int            `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}

// normalise clamps the page bounds.
func (f ListFilter) normalise() ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// List returns one page of devices matching filter.
func (s *SQLStore) List(ctx context.Context, filter ListFilter) (*DevicePage, error) {
	filter = filter.normalise()

	var conditions []string
	var args []any
	if filter.Claimed != nil {
		args = append(args, *filter.Claimed)
		conditions = append(conditions, fmt.Sprintf("claimed = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	rs, err := s.db.Execute(ctx, "SELECT COUNT(*) AS total FROM devices "+where, args...)
	if err != nil {
		return nil, storeError("counting devices", err)
	}
	if rs.Len() != 1 {
		return nil, fmt.Errorf("%w: count returned %d rows", ErrInvariantViolation, rs.Len())
	}
	total, err := rs.Row(0).Int64("total")
	if err != nil {
		return nil, fmt.Errorf("%w: scanning device count: %w", ErrInvariantViolation, err)
	}

	query := fmt.Sprintf(
		`SELECT %s FROM devices %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		deviceColumns, where, len(args)+1, len(args)+2,
	)
	args = append(args, filter.Limit, filter.Offset)

	rs, err = s.db.Execute(ctx, query, args...)
	if err != nil {
		return nil, storeError("listing devices", err)
	}

	devices := make([]DeviceRecord, 0, rs.Len())
	for i := 0; i < rs.Len(); i++ {
		rec, err := scanRecord(rs.Row(i))
		if err != nil {
			return nil, err
		}
		devices = append(devices, *rec)
	}

	return &DevicePage{
		Devices: devices,
		Total:   int(total),
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}
