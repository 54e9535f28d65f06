package taskstore

import (
	"context"
	"time"

	"todoist/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type Middleware func(Service) Service

func LoggingMiddleware(log *logrus.Entry) Middleware {
	return func(next Service) Service {
		return loggingMiddleware{log, next}
	}
}

type loggingMiddleware struct {
	log  *logrus.Entry
	next Service
}

func (mw loggingMiddleware) done(method string, fields logrus.Fields, begin time.Time, err error) {
	entry := mw.log.WithFields(fields).WithFields(logrus.Fields{
		"method": method,
		"took":   time.Since(begin),
	})
	if err != nil {
		entry.WithError(err).Warn("task store call failed")
		return
	}
	entry.Debug("task store call")
}

func (mw loggingMiddleware) List(ctx context.Context, userID string) (tasks []models.Task, err error) {
	defer func(begin time.Time) {
		mw.done("List", logrus.Fields{"user_id": userID, "count": len(tasks)}, begin, err)
	}(time.Now())
	return mw.next.List(ctx, userID)
}

func (mw loggingMiddleware) Get(ctx context.Context, userID, taskID string) (task models.Task, err error) {
	defer func(begin time.Time) {
		mw.done("Get", logrus.Fields{"user_id": userID, "task_id": taskID}, begin, err)
	}(time.Now())
	return mw.next.Get(ctx, userID, taskID)
}

func (mw loggingMiddleware) Create(ctx context.Context, userID string, req models.CreateTaskRequest) (task models.Task, err error) {
	defer func(begin time.Time) {
		mw.done("Create", logrus.Fields{"user_id": userID, "task_id": task.ID}, begin, err)
	}(time.Now())
	return mw.next.Create(ctx, userID, req)
}

func (mw loggingMiddleware) Update(ctx context.Context, userID, taskID string, req models.UpdateTaskRequest) (task models.Task, err error) {
	defer func(begin time.Time) {
		mw.done("Update", logrus.Fields{"user_id": userID, "task_id": taskID}, begin, err)
	}(time.Now())
	return mw.next.Update(ctx, userID, taskID, req)
}

func (mw loggingMiddleware) Delete(ctx context.Context, userID, taskID string) (err error) {
	defer func(begin time.Time) {
		mw.done("Delete", logrus.Fields{"user_id": userID, "task_id": taskID}, begin, err)
	}(time.Now())
	return mw.next.Delete(ctx, userID, taskID)
}

// Metrics holds the collectors used by InstrumentingMiddleware.
type Metrics struct {
	RequestCount   *prometheus.CounterVec
	RequestLatency *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "todoist",
			Subsystem: "task_store",
			Name:      "request_count",
			Help:      "Number of task store calls received.",
		}, []string{"method", "error"}),
		RequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "todoist",
			Subsystem: "task_store",
			Name:      "request_latency_seconds",
			Help:      "Duration of task store calls in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	reg.MustRegister(m.RequestCount, m.RequestLatency)
	return m
}

func InstrumentingMiddleware(m *Metrics) Middleware {
	return func(next Service) Service {
		return instrumentingMiddleware{m, next}
	}
}

type instrumentingMiddleware struct {
	metrics *Metrics
	next    Service
}

func (mw instrumentingMiddleware) observe(method string, begin time.Time, err error) {
	mw.metrics.RequestCount.WithLabelValues(method, errorLabel(err)).Inc()
	mw.metrics.RequestLatency.WithLabelValues(method).Observe(time.Since(begin).Seconds())
}

func (mw instrumentingMiddleware) List(ctx context.Context, userID string) (tasks []models.Task, err error) {
	defer func(begin time.Time) { mw.observe("list", begin, err) }(time.Now())
	return mw.next.List(ctx, userID)
}

func (mw instrumentingMiddleware) Get(ctx context.Context, userID, taskID string) (task models.Task, err error) {
	defer func(begin time.Time) { mw.observe("get", begin, err) }(time.Now())
	return mw.next.Get(ctx, userID, taskID)
}

func (mw instrumentingMiddleware) Create(ctx context.Context, userID string, req models.CreateTaskRequest) (task models.Task, err error) {
	defer func(begin time.Time) { mw.observe("create", begin, err) }(time.Now())
	return mw.next.Create(ctx, userID, req)
}

func (mw instrumentingMiddleware) Update(ctx context.Context, userID, taskID string, req models.UpdateTaskRequest) (task models.Task, err error) {
	defer func(begin time.Time) { mw.observe("update", begin, err) }(time.Now())
	return mw.next.Update(ctx, userID, taskID, req)
}

func (mw instrumentingMiddleware) Delete(ctx context.Context, userID, taskID string) (err error) {
	defer func(begin time.Time) { mw.observe("delete", begin, err) }(time.Now())
	return mw.next.Delete(ctx, userID, taskID)
}

func errorLabel(err error) string {
	if err != nil {
		return "true"
	}
	return "false"
}
