package ftsboot

// MaxTouchPoints is the number of point records in a touch report.
const MaxTouchPoints = 10

const (
	touchRecordLength = 6
	touchReportLength = 2 + MaxTouchPoints*touchRecordLength
)

// TouchEvent is the event flag of a point record.
type TouchEvent byte

// Touch events.
const (
	TouchDown TouchEvent = iota
	TouchUp
	TouchContact
	TouchNone
)

// TouchPoint is a finger reported by the controller.
type TouchPoint struct {
	ID    int
	Event TouchEvent
	X, Y  int
}

// ParseTouchReport decodes a touch report. Only fingers that are down or in
// contact are returned. Decoding stops at the first record with an invalid
// touch ID.
func ParseTouchReport(report []byte) []TouchPoint {
	var points []TouchPoint
	for i := 0; i < MaxTouchPoints; i++ {
		start := 2 + i*touchRecordLength
		if start+4 > len(report) {
			break
		}
		rec := report[start:]
		id := int(rec[2] >> 4)
		if id >= MaxTouchPoints {
			break
		}
		event := TouchEvent(rec[0] >> 6)
		if event != TouchDown && event != TouchContact {
			continue
		}
		points = append(points, TouchPoint{
			ID:    id,
			Event: event,
			X:     int(rec[0]&0x0F)<<8 | int(rec[1]),
			Y:     int(rec[2]&0x0F)<<8 | int(rec[3]),
		})
	}
	return points
}

// ReadTouchPoints reads and decodes the current touch report.
func ReadTouchPoints(ch *Channel) ([]TouchPoint, error) {
	cmd := NewTouchReportCommand()
	report, err := ch.Read(cmd.Opcode, cmd.GetResponseLength())
	if err != nil {
		return nil, err
	}
	return ParseTouchReport(report), nil
}
