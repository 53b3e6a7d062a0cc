package utils

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// NowAsUnixMilli returns current time in ms
func NowAsUnixMilli() int64 {
	return time.Now().UnixMilli()
}

// EnsurePath is used to make sure a path exists. For a file path, its parent directory is created.
func EnsurePath(path string, dir bool) error {
	if !dir {
		path = filepath.Dir(path)
	}
	return os.MkdirAll(path, 0755)
}

// PartitionDir is the directory holding the data of one topic partition, named like kafka does
func PartitionDir(logDir, topic string, partition int32) string {
	return filepath.Join(logDir, topic+"-"+strconv.Itoa(int(partition)))
}
