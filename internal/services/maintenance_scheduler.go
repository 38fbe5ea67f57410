package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"alumnigate/pkg/metrics"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// 定时任务名称
const (
	JobOTPCleanup       = "otp_cleanup"
	JobInvitationExpire = "invitation_expire"
)

// MaintenanceScheduler 维护类定时任务：清理过期验证码、标记过期邀请
type MaintenanceScheduler struct {
	cron        *cron.Cron
	otp         *OTPService
	invitations *InvitationService
	log         *logrus.Logger
	timeout     time.Duration
	jobs        map[string]cron.EntryID
	mu          sync.Mutex
	running     bool
}

// NewMaintenanceScheduler 创建维护调度器
func NewMaintenanceScheduler(otp *OTPService, invitations *InvitationService, log *logrus.Logger) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		cron:        cron.New(),
		otp:         otp,
		invitations: invitations,
		log:         log,
		timeout:     time.Minute,
		jobs:        make(map[string]cron.EntryID),
	}
}

// AddOTPCleanup 注册验证码清理任务
func (s *MaintenanceScheduler) AddOTPCleanup(spec string) error {
	return s.addJob(JobOTPCleanup, spec, func(ctx context.Context) error {
		_, err := s.otp.CleanupExpired(ctx)
		return err
	})
}

// AddInvitationExpire 注册过期邀请标记任务
func (s *MaintenanceScheduler) AddInvitationExpire(spec string) error {
	return s.addJob(JobInvitationExpire, spec, func(ctx context.Context) error {
		_, err := s.invitations.ExpireStale(ctx)
		return err
	})
}

func (s *MaintenanceScheduler) addJob(name, spec string, job func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("无效的cron表达式 %s: %v", spec, err)
	}
	if id, exists := s.jobs[name]; exists {
		s.cron.Remove(id)
	}

	id, err := s.cron.AddFunc(spec, func() { s.RunJob(name, job) })
	if err != nil {
		return fmt.Errorf("添加定时任务 %s 失败: %v", name, err)
	}
	s.jobs[name] = id
	s.log.Infof("已添加定时任务 %s，cron: %s", name, spec)
	return nil
}

// RunJob 执行一次任务并记录耗时与结果
func (s *MaintenanceScheduler) RunJob(name string, job func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	err := job(ctx)
	duration := time.Since(start)
	metrics.RecordCronJobRun(name, duration, err)

	entry := s.log.WithFields(logrus.Fields{
		"job":         name,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("定时任务执行失败")
		return
	}
	entry.Debug("定时任务执行完成")
}

// Jobs 已注册的任务名
func (s *MaintenanceScheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

// Start 启动调度器
func (s *MaintenanceScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.log.Infof("维护调度器启动成功，已加载 %d 个任务", len(s.jobs))
}

// Stop 停止调度器并等待正在执行的任务结束
func (s *MaintenanceScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.log.Info("停止维护调度器")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
}
