package datalog

import (
	"strconv"
	"time"
)

// Channel selects a destination file.
type Channel string

const (
	ChannelIMU        Channel = "IMU"
	ChannelSuspension Channel = "SUSPENSION"
)

const (
	IMUFileName        = "IMU_logger.csv"
	SuspensionFileName = "suspension_logger.csv"
)

var channelSpecs = map[Channel]struct {
	file   string
	header []string
}{
	ChannelIMU: {
		file:   IMUFileName,
		header: []string{"timestamp", "IMU_Ang_X", "IMU_Ang_Y", "IMU_Ang_Z"},
	},
	ChannelSuspension: {
		file:   SuspensionFileName,
		header: []string{"timestamp", "SUS_1", "SUS_2", "SUS_3", "SUS_4"},
	},
}

// Event is one row waiting to be written. Fields are pre-formatted by the
// producer.
type Event struct {
	Channel   Channel
	Timestamp int64 // milliseconds since the UNIX epoch
	Fields    []string
}

func (e Event) record() []string {
	row := make([]string, 0, len(e.Fields)+1)
	row = append(row, strconv.FormatInt(e.Timestamp, 10))
	return append(row, e.Fields...)
}

func imuEvent(at time.Time, x, y, z int16) Event {
	return Event{
		Channel:   ChannelIMU,
		Timestamp: at.UnixMilli(),
		Fields: []string{
			strconv.Itoa(int(x)),
			strconv.Itoa(int(y)),
			strconv.Itoa(int(z)),
		},
	}
}

func suspensionEvent(at time.Time, sus [4]uint16) Event {
	fields := make([]string, len(sus))
	for i, v := range sus {
		fields[i] = strconv.FormatUint(uint64(v), 10)
	}
	return Event{Channel: ChannelSuspension, Timestamp: at.UnixMilli(), Fields: fields}
}
