package logger

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewActivityLog opens the append-only activity file every job writes its steps to.
// Lines look like: 2024-05-01T10:00:00.000+08:00	ERROR	sync	invoice sync failed	{"error": "..."}
func NewActivityLog(path string) (*zap.Logger, error) {
	file, err := openAppend(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open activity log: %w", err)
	}

	ec := encoderConfig(DefaultConfig().TimeFormat)
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	ec.CallerKey = zapcore.OmitKey
	ec.StacktraceKey = zapcore.OmitKey

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(ec), zapcore.AddSync(file), zapcore.InfoLevel)
	return zap.New(core), nil
}

// tailChunk is how many bytes TailFile reads per step when walking back from the end
var tailChunk int64 = 64 * 1024

// TailFile returns the last n lines of the file at path, oldest first.
// A missing file yields no lines. Only the end of the file is read.
func TailFile(path string, n int) ([]string, error) {
	if n <= 0 {
		return []string{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	window, err := readTail(f, info.Size(), n)
	if err != nil {
		return nil, err
	}
	return tail(bytes.NewReader(window), n)
}

// readTail reads backwards from size until the window holds more than n line breaks
// or the start of the file. A leading partial line is dropped.
func readTail(r io.ReaderAt, size int64, n int) ([]byte, error) {
	offset := size
	var window []byte
	for offset > 0 && bytes.Count(window, []byte{'\n'}) <= n {
		step := tailChunk
		if step > offset {
			step = offset
		}
		offset -= step
		buf := make([]byte, step, int(step)+len(window))
		if _, err := r.ReadAt(buf, offset); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		window = append(buf, window...)
	}
	if offset > 0 {
		if i := bytes.IndexByte(window, '\n'); i >= 0 {
			window = window[i+1:]
		}
	}
	return window, nil
}

func tail(r io.Reader, n int) ([]string, error) {
	ring := make([]string, 0, n)
	start := 0
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(ring) < n {
			ring = append(ring, scanner.Text())
			continue
		}
		ring[start] = scanner.Text()
		start = (start + 1) % n
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return append(ring[start:], ring[:start]...), nil
}
