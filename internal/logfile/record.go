package logfile

import (
	"strconv"

	"github.com/relabs-tech/stratus_logger/internal/imu"
	"github.com/relabs-tech/stratus_logger/internal/orientation"
)

// Header is the first line of every log file.
const Header = "Timestamp,Roll,Pitch,Yaw,AccX,AccY,AccZ,GyroX,GyroY,GyroZ,Temp,Humidity,MagX,MagY,MagZ"

// NumFields is the number of comma separated values per record.
const NumFields = 15

// Record is one logged sample. Accel is raw (m/s²), Gyro bias corrected
// (°/s) and Mag calibrated.
type Record struct {
	Timestamp   float64 // seconds since logger start
	Roll        float64
	Pitch       float64
	Yaw         float64
	Accel       imu.Vector3
	Gyro        imu.Vector3
	Temperature float64
	Humidity    float64
	Mag         imu.Vector3
}

// NewRecord assembles a record from an estimator output.
func NewRecord(ts float64, s imu.Sample, out orientation.Output, mag imu.Vector3) Record {
	return Record{
		Timestamp:   ts,
		Roll:        out.Roll,
		Pitch:       out.Pitch,
		Yaw:         out.Yaw,
		Accel:       s.Accel,
		Gyro:        out.Gyro,
		Temperature: s.Temperature,
		Humidity:    s.Humidity,
		Mag:         mag,
	}
}

// AppendTo appends the CSV line for r, including the newline, to b.
// The timestamp has 6 decimals, every other field 2.
func (r Record) AppendTo(b []byte) []byte {
	b = strconv.AppendFloat(b, r.Timestamp, 'f', 6, 64)
	for _, v := range [...]float64{
		r.Roll, r.Pitch, r.Yaw,
		r.Accel.X, r.Accel.Y, r.Accel.Z,
		r.Gyro.X, r.Gyro.Y, r.Gyro.Z,
		r.Temperature, r.Humidity,
		r.Mag.X, r.Mag.Y, r.Mag.Z,
	} {
		b = append(b, ',')
		b = strconv.AppendFloat(b, v, 'f', 2, 64)
	}
	return append(b, '\n')
}

// String returns the CSV line without the trailing newline.
func (r Record) String() string {
	b := r.AppendTo(nil)
	return string(b[:len(b)-1])
}
