package keyValStore

import (
	"fmt"

	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
)

const bytesPerGB = 1e9

// checkFreeSpace verifies each data path sits on a filesystem with at least
// minimumFreeGB of free space and logs the usage picture. Records are
// permanent audit artifacts, so refusing to start beats running a store
// onto a full disk.
func checkFreeSpace(log *logrus.Logger, paths []string, minimumFreeGB int) error {
	for _, path := range paths {
		usage, err := disk.Usage(path)
		if err != nil {
			return fmt.Errorf("error retrieving disk usage for %s: %w", path, err)
		}

		freeGB := float64(usage.Free) / bytesPerGB

		log.WithFields(logrus.Fields{
			"Path":       path,
			"Total (GB)": fmt.Sprintf("%.2f", float64(usage.Total)/bytesPerGB),
			"Used (GB)":  fmt.Sprintf("%.2f", float64(usage.Used)/bytesPerGB),
			"Free (GB)":  fmt.Sprintf("%.2f", freeGB),
		}).Info("Disk Usage")

		if freeGB < float64(minimumFreeGB) {
			return fmt.Errorf("insufficient free space on %s: %.2f GB free, %d GB required", path, freeGB, minimumFreeGB)
		}
	}

	return nil
}
