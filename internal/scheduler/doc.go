// Package scheduler запускает задания по cron-выражению или интервалу.
package scheduler
