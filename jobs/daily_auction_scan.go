package jobs

import (
	"context"
	"time"

	"github.com/isir-tracker/isir-backend/models"
	"github.com/sirupsen/logrus"
)

// DailyAuctionScanJob scans the previous calendar day and logs what it found.
type DailyAuctionScanJob struct {
	Scanner Scanner
	Timeout time.Duration
	now     func() time.Time
}

func NewDailyAuctionScanJob(scanner Scanner) *DailyAuctionScanJob {
	return &DailyAuctionScanJob{
		Scanner: scanner,
		Timeout: 2 * time.Hour,
		now:     time.Now,
	}
}

// Window returns yesterday's window, 00:00:00 to 23:59:59.
func (j *DailyAuctionScanJob) Window() models.ScanWindow {
	yesterday := j.now().AddDate(0, 0, -1)
	w, _ := models.PresetWindow(models.PeriodCustom, time.Time{}, yesterday, yesterday)
	return w
}

func (j *DailyAuctionScanJob) Run() {
	logrus.Info("Starting Daily Auction Scan Job")
	ctx, cancel := context.WithTimeout(context.Background(), j.Timeout)
	defer cancel()

	window := j.Window()
	result, err := j.Scanner.Scan(ctx, window, func(p models.ScanProgress) {
		logrus.WithField("ratio", p.Ratio).Debug(p.Label)
	})
	if err != nil {
		logrus.Errorf("Failed to run Daily Auction Scan Job: %v", err)
		return
	}

	for i, event := range result.Events {
		logrus.WithFields(logrus.Fields{
			"index":  i + 1,
			"total":  len(result.Events),
			"case":   event.Name,
			"doc_id": event.DocID,
			"date":   event.Date.Format(models.DisplayTimeLayout),
		}).Info(event.Event)
	}

	logrus.WithFields(logrus.Fields{
		"day":       window.Start.Format("02.01.2006"),
		"events":    len(result.Events),
		"processed": result.Processed,
		"batches":   result.Batches,
		"duration":  result.Duration,
	}).Info("Daily Auction Scan Job completed")
}
