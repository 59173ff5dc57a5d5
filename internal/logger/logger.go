// Package logger tees log output to the console and to
// log/latest.txt, keeping the previous run in log/last.txt.
package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
)

type Logger struct {
	dir string
}

// Install rotates the previous run's log and routes the standard
// logger through the tee.
func Install(dir string) *Logger {
	if dir == "" {
		dir = "log"
	}
	os.MkdirAll(dir, 0777)
	os.Rename(filepath.Join(dir, "latest.txt"), filepath.Join(dir, "last.txt"))

	l := &Logger{dir: dir}
	log.SetOutput(l)

	return l
}

func (l *Logger) Write(p []byte) (int, error) {
	fmt.Print(string(p))

	writeAppend(filepath.Join(l.dir, "latest.txt"), p, 0666)

	return len(p), nil
}

func writeAppend(name string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(data)
	return err
}
