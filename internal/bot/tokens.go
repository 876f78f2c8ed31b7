package bot

import (
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/markdave123-py/Rentora/internal/models"
)

const (
	bookSlotPrefix = "book_slot_"
	confirmPrefix  = "confirm_v_"
)

// BookSlotToken encodes a slot start for a slot-picker button.
func BookSlotToken(start time.Time) string {
	return bookSlotPrefix + start.UTC().Format(time.RFC3339)
}

// ParseBookSlot recovers the start time from a book_slot_ token.
func ParseBookSlot(data string) (time.Time, bool) {
	raw, ok := strings.CutPrefix(data, bookSlotPrefix)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// ConfirmToken binds an owner confirmation to a lead and requested start.
func ConfirmToken(leadID string, start time.Time) string {
	return confirmPrefix + leadID + "_" + strconv.FormatInt(start.Unix(), 10)
}

// ParseConfirm splits a confirm_v_ token. Lead ids may contain underscores,
// so the epoch is taken after the last one.
func ParseConfirm(data string) (leadID string, start time.Time, ok bool) {
	raw, found := strings.CutPrefix(data, confirmPrefix)
	if !found {
		return "", time.Time{}, false
	}
	i := strings.LastIndexByte(raw, '_')
	if i <= 0 || i == len(raw)-1 {
		return "", time.Time{}, false
	}
	epoch, err := strconv.ParseInt(raw[i+1:], 10, 64)
	if err != nil {
		return "", time.Time{}, false
	}
	return raw[:i], time.Unix(epoch, 0).UTC(), true
}

// displayFormat renders instants in the listing time zone.
type displayFormat struct {
	loc *time.Location
}

func (f displayFormat) day(t time.Time) string {
	return t.In(f.loc).Format("02/01")
}

func (f displayFormat) hour(t time.Time) string {
	return t.In(f.loc).Format("15:04")
}

func (f displayFormat) slot(s models.Slot) string {
	return f.day(s.Start) + " | " + f.hour(s.Start) + "-" + f.hour(s.End)
}
