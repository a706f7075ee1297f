/**
 * 弱口令爆破引擎
 * @description: 字典驱动的凭据验证。每个任务 = (目标, 协议, 端口)，
 *               串行遍历字典，连接级错误连续过阈值则放弃该目标。
 */
package brute

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"raider/internal/core/model"
	"raider/internal/pkg/logger"
)

const (
	// 单次凭据验证超时
	defaultAttemptTimeout = 5 * time.Second

	// 连续连接失败阈值，超过即判定目标不可达
	maxConsecutiveConnErrors = 5

	// 协议错误阈值，超过即判定端口上不是目标协议
	maxProtocolErrors = 3
)

// TaskResult 单个爆破任务的结果
type TaskResult struct {
	Outcome  model.OutcomeKind        // success / no_creds / failed
	Creds    []model.CredentialRecord // 命中的凭据 (可能多条)
	Attempts int                      // 实际尝试次数
	Err      error                    // failed 时的原因
}

// Engine 爆破引擎
type Engine struct {
	pool           *Pool
	dict           *DictManager
	attemptTimeout time.Duration
	timeWait       func(protocol string) time.Duration

	mu       sync.RWMutex
	crackers map[string]Cracker
}

// NewEngine 创建引擎
// timeWait 返回协议级的尝试间隔 (防账号锁定)，nil 表示不等待
func NewEngine(pool *Pool, dict *DictManager, timeWait func(protocol string) time.Duration) *Engine {
	if timeWait == nil {
		timeWait = func(string) time.Duration { return 0 }
	}
	return &Engine{
		pool:           pool,
		dict:           dict,
		attemptTimeout: defaultAttemptTimeout,
		timeWait:       timeWait,
		crackers:       make(map[string]Cracker),
	}
}

// RegisterCracker 注册协议爆破器
func (e *Engine) RegisterCracker(c Cracker) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.crackers[c.Name()] = c
}

// Protocols 已注册协议名
func (e *Engine) Protocols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.crackers))
	for name := range e.crackers {
		out = append(out, name)
	}
	return out
}

// Crack 对单个目标执行一次完整的协议爆破
// 经过工作池: 排队+执行受 queue_timeout 墙钟约束，
// 超时/重复提交作为 failed 结果返回而不是丢异常
func (e *Engine) Crack(ctx context.Context, target *model.Target, protocol string, port int) TaskResult {
	e.mu.RLock()
	cracker, ok := e.crackers[protocol]
	e.mu.RUnlock()
	if !ok {
		return TaskResult{Outcome: model.OutcomeFailed, Err: fmt.Errorf("unsupported protocol: %s", protocol)}
	}

	res, err := e.pool.Run(ctx, target.Key(), protocol, func(taskCtx context.Context) TaskResult {
		return e.runDict(taskCtx, cracker, target, port)
	})
	if err != nil {
		if errors.Is(err, ErrQueueTimeout) {
			logger.Warnf("brute %s on %s timed out in queue", protocol, target.IP)
		}
		return TaskResult{Outcome: model.OutcomeFailed, Err: err}
	}
	return res
}

// runDict 来宾探测 + 串行遍历字典
// 匿名/空凭据能进直接判 success，记一条来宾凭据，字典一次都不跑；
// 只开匿名访问的服务绝不会落 no_creds
func (e *Engine) runDict(ctx context.Context, cracker Cracker, target *model.Target, port int) TaskResult {
	var res TaskResult

	guestCtx, cancel := context.WithTimeout(ctx, e.attemptTimeout)
	open, err := cracker.Check(guestCtx, target.IP, port, Auth{})
	cancel()
	if open {
		res.Outcome = model.OutcomeSuccess
		res.Creds = append(res.Creds, model.CredentialRecord{
			Protocol: cracker.Name(),
			IP:       target.IP,
			MAC:      target.MAC,
			Username: model.GuestUser,
			FoundAt:  time.Now(),
		})
		logger.Infof("brute %s found open/guest access on %s:%d", cracker.Name(), target.IP, port)
		return res
	}
	if err != nil {
		logger.Debugf("brute %s guest check on %s:%d: %v", cracker.Name(), target.IP, port, err)
	}

	authList := e.dict.Generate(cracker.Mode())
	wait := e.timeWait(cracker.Name())

	connErrors := 0
	protoErrors := 0
	// 已命中的用户名不再继续试其余口令
	cracked := make(map[string]struct{})

	for i, auth := range authList {
		select {
		case <-ctx.Done():
			res.Outcome = model.OutcomeFailed
			res.Err = ctx.Err()
			return res
		default:
		}
		if _, done := cracked[auth.Username]; done && auth.Username != "" {
			continue
		}

		// 协议级尝试间隔，首次尝试不等
		if wait > 0 && i > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				res.Outcome = model.OutcomeFailed
				res.Err = ctx.Err()
				return res
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, e.attemptTimeout)
		ok, err := cracker.Check(attemptCtx, target.IP, port, auth)
		cancel()
		res.Attempts++

		if ok {
			cred := model.CredentialRecord{
				Protocol: cracker.Name(),
				IP:       target.IP,
				MAC:      target.MAC,
				Username: auth.Username,
				Password: auth.Password,
				FoundAt:  time.Now(),
			}
			if auth.Guest() {
				cred.Username = model.GuestUser
			}
			res.Creds = append(res.Creds, cred)
			cracked[auth.Username] = struct{}{}
			logger.Infof("brute %s found credentials on %s:%d user=%q", cracker.Name(), target.IP, port, cred.Username)
			connErrors = 0
			continue
		}

		switch {
		case err == nil || errors.Is(err, ErrAuthFailed):
			connErrors = 0
		case errors.Is(err, ErrConnectionFailed):
			connErrors++
			if connErrors >= maxConsecutiveConnErrors {
				res.Outcome = model.OutcomeFailed
				res.Err = fmt.Errorf("%s unreachable after %d consecutive connection errors: %w", target.IP, connErrors, err)
				return res
			}
		case errors.Is(err, ErrProtocolError):
			protoErrors++
			if protoErrors >= maxProtocolErrors {
				res.Outcome = model.OutcomeFailed
				res.Err = fmt.Errorf("port %d does not speak %s: %w", port, cracker.Name(), err)
				return res
			}
		default:
			// 未知错误按连接问题累计
			logger.Debugf("brute %s unexpected error on %s:%d: %v", cracker.Name(), target.IP, port, err)
			connErrors++
			if connErrors >= maxConsecutiveConnErrors {
				res.Outcome = model.OutcomeFailed
				res.Err = err
				return res
			}
		}
	}

	if len(res.Creds) > 0 {
		res.Outcome = model.OutcomeSuccess
	} else {
		// 字典跑完没有命中: 目标可达但无弱口令
		res.Outcome = model.OutcomeNoCreds
	}
	return res
}
