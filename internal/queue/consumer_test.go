package queue

import (
    "os"
    "path/filepath"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestFormatLine(t *testing.T) {
    line := FormatLine(Event{
        Type:            TransferAccepted,
        ReservationID:   7,
        ReservationDate: "2025-02-08",
        UserID:          3,
        TargetUserID:    9,
        TransferID:      2,
        Spots:           []uint64{3, 4},
        OccurredAt:      "2025-02-01T10:00:00Z",
    })
    assert.Equal(t, "[2025-02-01T10:00:00Z] transfer.accepted | reservation_id=7 | date=2025-02-08 | user_id=3 | target_user_id=9 | transfer_id=2 | spots=[3,4]\n", line)
}

func TestNotificationLogHandleAppends(t *testing.T) {
    dir := filepath.Join(t.TempDir(), "out")
    sink := NotificationLog{Dir: dir}

    require.NoError(t, sink.Handle([]byte(`{"type":"reservation.created","reservationId":1,"reservationDate":"2025-02-08","userId":5,"seats":2,"occurredAt":"t1"}`)))
    require.NoError(t, sink.Handle([]byte(`{"type":"reservation.cancelled","reservationId":1,"reservationDate":"2025-02-08","userId":5,"seats":2,"occurredAt":"t2"}`)))

    raw, err := os.ReadFile(filepath.Join(dir, "notifications.log"))
    require.NoError(t, err)
    assert.Equal(t,
        "[t1] reservation.created | reservation_id=1 | date=2025-02-08 | user_id=5 | seats=2\n"+
            "[t2] reservation.cancelled | reservation_id=1 | date=2025-02-08 | user_id=5 | seats=2\n",
        string(raw))
}

func TestNotificationLogRejectsBadBody(t *testing.T) {
    sink := NotificationLog{Dir: t.TempDir()}
    assert.Error(t, sink.Handle([]byte("not json")))
    assert.Error(t, sink.Handle([]byte(`{"reservationId":1}`)))
}
