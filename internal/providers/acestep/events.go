package acestep

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	eventPrefix = "data:"

	msgProcessCompleted = "process_completed"
	msgProcessFailed    = "process_failed"
	msgQueueFull        = "queue_full"

	maxEventLine = 4 << 20
)

// queueEvent is one record of the queue data stream. Only msg is guaranteed.
type queueEvent struct {
	Msg     string       `json:"msg"`
	EventID string       `json:"event_id,omitempty"`
	Success *bool        `json:"success,omitempty"`
	Output  *eventOutput `json:"output,omitempty"`
}

type eventOutput struct {
	Data  []json.RawMessage `json:"data"`
	Error string            `json:"error,omitempty"`
}

type fileData struct {
	URL  string `json:"url"`
	Path string `json:"path,omitempty"`
}

// resultURL returns output.data[0].url when present.
func (e queueEvent) resultURL() string {
	if e.Output == nil || len(e.Output.Data) == 0 {
		return ""
	}
	var file fileData
	if err := json.Unmarshal(e.Output.Data[0], &file); err != nil {
		return ""
	}
	return strings.TrimSpace(file.URL)
}

type outcome int

const (
	outcomePending outcome = iota
	outcomeCompleted
	outcomeFailed
)

// verdict is the terminal decision read from one poll response.
type verdict struct {
	outcome outcome
	url     string
	msg     string
	reason  string
	seen    int
}

var errMalformedEvent = errors.New("malformed queue event")

// scanEvents reads prefix-fenced records from r and stops at the first
// terminal one; lines after it are never read.
func scanEvents(r io.Reader, onEvent func(queueEvent)) (verdict, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxEventLine)
	var v verdict
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, eventPrefix) {
			continue
		}
		payload := strings.TrimSpace(line[len(eventPrefix):])
		if payload == "" {
			continue
		}
		var ev queueEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return v, fmt.Errorf("%w: %v", errMalformedEvent, err)
		}
		v.seen++
		if onEvent != nil {
			onEvent(ev)
		}
		switch ev.Msg {
		case msgProcessCompleted:
			if url := ev.resultURL(); url != "" {
				v.outcome = outcomeCompleted
				v.url = url
				return v, nil
			}
		case msgQueueFull, msgProcessFailed:
			v.outcome = outcomeFailed
			v.msg = ev.Msg
			v.reason = ev.Msg
			if ev.Output != nil && ev.Output.Error != "" {
				v.reason = ev.Msg + ": " + ev.Output.Error
			}
			return v, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return v, err
	}
	return v, nil
}
