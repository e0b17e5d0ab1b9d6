package encoder

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

// Progress is one normalized sample of encoder throughput.
type Progress struct {
	FPS     float64
	Speed   float64
	OutTime time.Duration
	Percent float64
	ETA     time.Duration
	Done    bool
}

// readProgress consumes ffmpeg's -progress key=value stream and invokes
// onSample once per progress block. duration is the known source duration
// used to derive percent and ETA; zero disables both.
func readProgress(r io.Reader, duration time.Duration, onSample func(Progress)) error {
	scanner := bufio.NewScanner(r)
	var current Progress
	sawMicros := false

	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.IndexByte(line, '=')
		if idx <= 0 {
			continue
		}
		key, value := line[:idx], line[idx+1:]

		switch key {
		case "fps":
			current.FPS, _ = strconv.ParseFloat(value, 64)
		case "out_time_us":
			// Most precise when present; older builds emit only
			// out_time_ms or out_time.
			us, _ := strconv.ParseInt(value, 10, 64)
			current.OutTime = time.Duration(us) * time.Microsecond
			sawMicros = true
		case "out_time_ms":
			if !sawMicros {
				ms, _ := strconv.ParseInt(value, 10, 64)
				current.OutTime = time.Duration(ms) * time.Millisecond
			}
		case "out_time":
			if !sawMicros && value != "N/A" {
				if parsed, err := parseOutTime(value); err == nil {
					current.OutTime = parsed
				}
			}
		case "speed":
			if value != "N/A" {
				current.Speed, _ = strconv.ParseFloat(strings.TrimSuffix(value, "x"), 64)
			}
		case "progress":
			if value != "continue" && value != "end" {
				continue
			}
			current.Done = value == "end"
			if duration > 0 {
				current.Percent = float64(current.OutTime) / float64(duration) * 100
				if current.Percent > 100 {
					current.Percent = 100
				}
				if current.Speed > 0 && duration > current.OutTime {
					current.ETA = time.Duration(float64(duration-current.OutTime) / current.Speed)
				} else {
					current.ETA = 0
				}
			}
			if onSample != nil {
				onSample(current)
			}
			sawMicros = false
		}
	}
	return scanner.Err()
}

// parseOutTime parses ffmpeg's HH:MM:SS.micros timestamps.
func parseOutTime(value string) (time.Duration, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return 0, strconv.ErrSyntax
	}
	hours, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, err
	}
	minutes, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, err
	}

	secondsPart := parts[2]
	var seconds, nanos int64
	if dot := strings.IndexByte(secondsPart, '.'); dot >= 0 {
		seconds, err = strconv.ParseInt(secondsPart[:dot], 10, 64)
		if err != nil {
			return 0, err
		}
		fraction := secondsPart[dot+1:]
		if len(fraction) > 9 {
			fraction = fraction[:9]
		}
		for len(fraction) < 9 {
			fraction += "0"
		}
		nanos, err = strconv.ParseInt(fraction, 10, 64)
		if err != nil {
			return 0, err
		}
	} else {
		seconds, err = strconv.ParseInt(secondsPart, 10, 64)
		if err != nil {
			return 0, err
		}
	}

	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(nanos), nil
}
