package jobs

import (
	"github.com/isir-tracker/isir-backend/services"
	"github.com/sirupsen/logrus"
)

type CacheCleanupJob struct {
	CacheService *services.CacheService
	ScanJobs     *ScanJobManager
}

func NewCacheCleanupJob(cacheService *services.CacheService, scanJobs *ScanJobManager) *CacheCleanupJob {
	return &CacheCleanupJob{CacheService: cacheService, ScanJobs: scanJobs}
}

func (j *CacheCleanupJob) Run() {
	logrus.Info("Starting Cache Cleanup Job")

	expired := j.CacheService.CleanupExpired()
	pruned := 0
	if j.ScanJobs != nil {
		pruned = j.ScanJobs.Prune()
	}

	logrus.WithFields(logrus.Fields{
		"expired_summaries": expired,
		"pruned_scan_jobs":  pruned,
		"cache_size":        j.CacheService.Size(),
	}).Info("Cache Cleanup Job completed")
}
