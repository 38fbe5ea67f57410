package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// InvitationsCreatedTotal 创建的邀请数
	InvitationsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invitations_created_total",
			Help: "Total number of invitations created",
		},
		[]string{"type"},
	)

	// InvitationTransitionsTotal 邀请状态变更（resend/revoke/accept/expire）
	InvitationTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invitation_transitions_total",
			Help: "Total number of invitation lifecycle transitions",
		},
		[]string{"action"},
	)

	// InvitationValidationsTotal 邀请校验结果
	InvitationValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invitation_validations_total",
			Help: "Total number of invitation validations by result",
		},
		[]string{"result"},
	)

	// OTPIssuedTotal 签发的验证码
	OTPIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_issued_total",
			Help: "Total number of one-time passcodes issued",
		},
		[]string{"type"},
	)

	// OTPValidationsTotal 验证码校验结果
	OTPValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_validations_total",
			Help: "Total number of one-time passcode validations by result",
		},
		[]string{"result"},
	)

	// OTPCleanupDeletedTotal 清理掉的过期验证码
	OTPCleanupDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "otp_cleanup_deleted_total",
			Help: "Total number of expired one-time passcodes deleted",
		},
	)

	// MailSentTotal 邮件发送结果
	MailSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_sent_total",
			Help: "Total number of mail deliveries by kind and result",
		},
		[]string{"kind", "result"},
	)

	// CronJobRunsTotal 定时任务执行次数
	CronJobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cron_job_runs_total",
			Help: "Total number of cron job runs",
		},
		[]string{"job_name"},
	)

	// CronJobErrorsTotal 定时任务失败次数
	CronJobErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cron_job_errors_total",
			Help: "Total number of cron job errors",
		},
		[]string{"job_name"},
	)

	// CronJobRunDurationSeconds 定时任务耗时
	CronJobRunDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cron_job_run_duration_seconds",
			Help:    "Duration of cron job runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"job_name"},
	)

	registry     = prometheus.NewRegistry()
	registerOnce sync.Once
)

// Register 注册所有指标，可重复调用
func Register() {
	registerOnce.Do(func() {
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		registry.MustRegister(
			InvitationsCreatedTotal,
			InvitationTransitionsTotal,
			InvitationValidationsTotal,
			OTPIssuedTotal,
			OTPValidationsTotal,
			OTPCleanupDeletedTotal,
			MailSentTotal,
			CronJobRunsTotal,
			CronJobErrorsTotal,
			CronJobRunDurationSeconds,
		)
	})
}

// Handler 返回 /metrics 处理器
func Handler() http.Handler {
	Register()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// RecordCronJobRun 记录一次定时任务执行
func RecordCronJobRun(jobName string, duration time.Duration, err error) {
	if err != nil {
		CronJobErrorsTotal.WithLabelValues(jobName).Inc()
	}
	CronJobRunsTotal.WithLabelValues(jobName).Inc()
	CronJobRunDurationSeconds.WithLabelValues(jobName).Observe(duration.Seconds())
}
