package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// WorkflowConfig tunes the timer workflow at runtime. It is hot reloaded from workflow.yml.
type WorkflowConfig struct {
	StatusSync StatusSyncConfig `mapstructure:"statusSync"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	RateLimit  RateLimitConfig  `mapstructure:"rateLimit"`
	Realtime   RealtimeConfig   `mapstructure:"realtime"`

	WorkerLockTTL time.Duration `mapstructure:"workerLockTTL"`
}

type StatusSyncConfig struct {
	BaseBackoff time.Duration `mapstructure:"baseBackoff"`
	MaxBackoff  time.Duration `mapstructure:"maxBackoff"`
	MaxAttempts int           `mapstructure:"maxAttempts"`
	BatchSize   int           `mapstructure:"batchSize"`
}

type SchedulerConfig struct {
	RunInterval time.Duration `mapstructure:"runInterval"`
	JobTimeout  time.Duration `mapstructure:"jobTimeout"`
}

type RateLimitConfig struct {
	Rate  float64 `mapstructure:"rate"`
	Burst int     `mapstructure:"burst"`
}

type RealtimeConfig struct {
	BacklogSize      int `mapstructure:"backlogSize"`
	SubscriberBuffer int `mapstructure:"subscriberBuffer"`
}

func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		StatusSync: StatusSyncConfig{
			BaseBackoff: 5 * time.Second,
			MaxBackoff:  10 * time.Minute,
			MaxAttempts: 8,
			BatchSize:   50,
		},
		Scheduler: SchedulerConfig{
			RunInterval: 30 * time.Second,
			JobTimeout:  30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Rate:  2,
			Burst: 10,
		},
		Realtime: RealtimeConfig{
			BacklogSize:      50,
			SubscriberBuffer: 16,
		},
		WorkerLockTTL: 5 * time.Second,
	}
}

type WorkflowConfigHolder struct {
	current atomic.Value // holds WorkflowConfig
}

// NewStaticWorkflowConfigHolder returns a holder that never reloads.
func NewStaticWorkflowConfigHolder(cfg WorkflowConfig) *WorkflowConfigHolder {
	holder := &WorkflowConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewWorkflowConfigHolder(appCfg Config, log *zap.Logger) (*WorkflowConfigHolder, error) {
	v := viper.New()

	if appCfg.WorkflowConfigPath != "" {
		v.SetConfigFile(appCfg.WorkflowConfigPath)
	} else {
		v.SetConfigName("workflow")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/shopfloor")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SHOPFLOOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setWorkflowDefaults(v)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	cfg, err := decodeWorkflowConfig(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticWorkflowConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeWorkflowConfig(v)
		if err != nil {
			log.Warn("workflow config reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("workflow config reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

func (h *WorkflowConfigHolder) Get() WorkflowConfig {
	if h == nil {
		return DefaultWorkflowConfig()
	}
	cfg, ok := h.current.Load().(WorkflowConfig)
	if !ok {
		return DefaultWorkflowConfig()
	}
	return cfg
}

func setWorkflowDefaults(v *viper.Viper) {
	d := DefaultWorkflowConfig()
	v.SetDefault("statusSync.baseBackoff", d.StatusSync.BaseBackoff)
	v.SetDefault("statusSync.maxBackoff", d.StatusSync.MaxBackoff)
	v.SetDefault("statusSync.maxAttempts", d.StatusSync.MaxAttempts)
	v.SetDefault("statusSync.batchSize", d.StatusSync.BatchSize)
	v.SetDefault("scheduler.runInterval", d.Scheduler.RunInterval)
	v.SetDefault("scheduler.jobTimeout", d.Scheduler.JobTimeout)
	v.SetDefault("rateLimit.rate", d.RateLimit.Rate)
	v.SetDefault("rateLimit.burst", d.RateLimit.Burst)
	v.SetDefault("realtime.backlogSize", d.Realtime.BacklogSize)
	v.SetDefault("realtime.subscriberBuffer", d.Realtime.SubscriberBuffer)
	v.SetDefault("workerLockTTL", d.WorkerLockTTL)
}

func decodeWorkflowConfig(v *viper.Viper) (WorkflowConfig, error) {
	var cfg WorkflowConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return WorkflowConfig{}, err
	}
	if err := validateWorkflowConfig(cfg); err != nil {
		return WorkflowConfig{}, err
	}
	return cfg, nil
}

func validateWorkflowConfig(cfg WorkflowConfig) error {
	if cfg.StatusSync.BaseBackoff <= 0 {
		return errors.New("statusSync.baseBackoff must be positive")
	}
	if cfg.StatusSync.MaxBackoff < cfg.StatusSync.BaseBackoff {
		return errors.New("statusSync.maxBackoff must be >= baseBackoff")
	}
	if cfg.StatusSync.MaxAttempts <= 0 {
		return errors.New("statusSync.maxAttempts must be positive")
	}
	if cfg.StatusSync.BatchSize <= 0 {
		return errors.New("statusSync.batchSize must be positive")
	}
	if cfg.Scheduler.RunInterval <= 0 {
		return errors.New("scheduler.runInterval must be positive")
	}
	if cfg.RateLimit.Rate <= 0 || cfg.RateLimit.Burst <= 0 {
		return errors.New("rateLimit.rate and rateLimit.burst must be positive")
	}
	return nil
}
