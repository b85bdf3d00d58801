// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package producer publishes messages to RocketMQ brokers. A Producer
// owns its connection pool, discovers routes through the name servers,
// spreads load across queues with a pluggable selector and retries
// transient failures on a different broker.
package producer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/rocketmq/message"
	"github.com/absmach/rocketmq/namesrv"
	"github.com/absmach/rocketmq/protocol"
	"github.com/absmach/rocketmq/remoting"
)

const (
	stateCreated int32 = iota
	stateRunning
	stateShutdown
)

// Producer is a thread-safe RocketMQ message publisher. Create one with
// New, call Start before sending and Shutdown when done.
type Producer struct {
	opts     *Options
	clientID string

	client *remoting.Client
	ns     *namesrv.NameServers
	routes *namesrv.RouteCache
	faults *faultTracker

	state  atomic.Int32
	stopCh chan struct{}
	wg     sync.WaitGroup

	// opMu orders async-send registration against shutdown: a send that
	// saw the running state registers on sends before Shutdown starts
	// waiting on it.
	opMu  sync.RWMutex
	sends sync.WaitGroup
}

// New builds a producer from the options. Name servers are resolved
// immediately so misconfiguration surfaces here rather than on the
// first send.
func New(opts *Options) (*Producer, error) {
	opts = opts.withDefaults()

	cfg := remoting.Config{
		TLS:            opts.TLSConfig,
		ConnectTimeout: opts.ConnectTimeout,
		HeaderCodec:    opts.HeaderCodec,
	}
	if opts.Credentials.Valid() {
		creds := opts.Credentials
		cfg.Credentials = &creds
	}
	client := remoting.NewClient(cfg)

	ns, err := namesrv.New(opts.resolver(), client, opts.SendTimeout)
	if err != nil {
		client.Shutdown()
		return nil, err
	}

	return &Producer{
		opts:     opts,
		clientID: buildClientID(opts.InstanceName, opts.UnitMode),
		client:   client,
		ns:       ns,
		routes:   namesrv.NewRouteCache(ns),
		faults:   newFaultTracker(opts.BrokerCooldown),
		stopCh:   make(chan struct{}),
	}, nil
}

// Start transitions the producer to running and launches the heartbeat
// and route-refresh loops. Starting twice is an error.
func (p *Producer) Start() error {
	if !p.state.CompareAndSwap(stateCreated, stateRunning) {
		if p.state.Load() == stateShutdown {
			return ErrShutdown
		}
		return errors.New("producer already started")
	}

	if p.opts.HeartbeatInterval > 0 {
		p.wg.Add(1)
		go p.heartbeatLoop()
	}
	if p.opts.RouteRefreshInterval > 0 {
		p.wg.Add(1)
		go p.routeRefreshLoop()
	}

	slog.Info("producer started",
		"group", p.opts.GroupName,
		"client_id", p.clientID,
		"name_servers", p.ns.Addrs())
	return nil
}

// Shutdown stops the background loops and closes every connection.
// In-flight sends fail with a closed-connection error.
func (p *Producer) Shutdown() {
	p.opMu.Lock()
	prev := p.state.Swap(stateShutdown)
	p.opMu.Unlock()
	if prev == stateShutdown {
		return
	}
	close(p.stopCh)
	p.wg.Wait()
	p.sends.Wait()
	p.client.Shutdown()
	slog.Info("producer stopped", "group", p.opts.GroupName)
}

func (p *Producer) running() error {
	switch p.state.Load() {
	case stateRunning:
		return nil
	case stateShutdown:
		return ErrShutdown
	default:
		return ErrNotStarted
	}
}

// Send publishes one message and blocks for the broker acknowledgment,
// retrying transient failures on other brokers.
func (p *Producer) Send(msg *message.Message) (*SendResult, error) {
	if err := p.running(); err != nil {
		return nil, err
	}
	if err := p.checkMessage(msg); err != nil {
		return nil, err
	}
	return p.sendWithRetry(msg, false)
}

// SendAsync publishes one message without blocking. The returned future
// resolves once the retry sequence settles.
func (p *Producer) SendAsync(msg *message.Message) *SendFuture {
	future := newSendFuture()
	if err := p.checkMessage(msg); err != nil {
		future.complete(nil, err)
		return future
	}

	p.opMu.RLock()
	err := p.running()
	if err == nil {
		p.sends.Add(1)
	}
	p.opMu.RUnlock()
	if err != nil {
		future.complete(nil, err)
		return future
	}

	go func() {
		defer p.sends.Done()
		future.complete(p.sendWithRetry(msg, false))
	}()
	return future
}

// SendOneway publishes one message without waiting for, or getting, any
// acknowledgment. Delivery is best effort and never retried.
func (p *Producer) SendOneway(msg *message.Message) error {
	if err := p.running(); err != nil {
		return err
	}
	if err := p.checkMessage(msg); err != nil {
		return err
	}
	_, err := p.sendOnce(msg, "", false, true)
	return err
}

// SendBatch packs the messages into one wire message and publishes it
// synchronously. All messages must share a topic and none may carry a
// delay level.
func (p *Producer) SendBatch(msgs ...*message.Message) (*SendResult, error) {
	if err := p.running(); err != nil {
		return nil, err
	}
	batch, err := p.buildBatch(msgs)
	if err != nil {
		return nil, err
	}
	return p.sendWithRetry(batch, true)
}

// SendBatchOneway packs and publishes the messages without waiting for
// an acknowledgment.
func (p *Producer) SendBatchOneway(msgs ...*message.Message) error {
	if err := p.running(); err != nil {
		return err
	}
	batch, err := p.buildBatch(msgs)
	if err != nil {
		return err
	}
	_, err = p.sendOnce(batch, "", true, true)
	return err
}

func (p *Producer) checkMessage(msg *message.Message) error {
	if msg.Topic == "" {
		return ErrEmptyTopic
	}
	if len(msg.Body) > p.opts.MaxMessageSize {
		return fmt.Errorf("%w: %d > %d bytes", ErrMessageTooLarge, len(msg.Body), p.opts.MaxMessageSize)
	}
	return nil
}

func (p *Producer) buildBatch(msgs []*message.Message) (*message.Message, error) {
	for _, m := range msgs {
		if err := p.checkMessage(m); err != nil {
			return nil, err
		}
	}
	batch, err := message.EncodeBatch(msgs)
	if err != nil {
		return nil, err
	}
	if len(batch.Body) > p.opts.MaxMessageSize {
		return nil, fmt.Errorf("%w: batch is %d bytes", ErrMessageTooLarge, len(batch.Body))
	}
	return batch, nil
}

// sendWithRetry runs the attempt loop: pick a queue avoiding the broker
// that just failed, send, and classify the outcome. A retryable failure
// forces a route refresh before the next attempt.
func (p *Producer) sendWithRetry(msg *message.Message, batch bool) (*SendResult, error) {
	attempts := 1 + p.opts.Retries

	var lastErr error
	lastBroker := ""
	force := false
	for attempt := 0; attempt < attempts; attempt++ {
		result, err := p.sendOnce(msg, lastBroker, batch, false)
		if err == nil {
			return result, nil
		}
		lastErr = err
		lastBroker = brokerOf(err)

		if !retryable(err) {
			return nil, err
		}
		if attempt < attempts-1 {
			slog.Debug("send attempt failed, retrying",
				"topic", msg.Topic, "attempt", attempt+1, "broker", lastBroker, "error", err)
			force = true
			if _, _, rerr := p.routes.Resolve(p.wrapNamespace(msg.Topic), force); rerr != nil {
				slog.Debug("route refresh between attempts failed",
					"topic", msg.Topic, "error", rerr)
			}
		}
	}
	return nil, &SendError{Topic: msg.Topic, Attempts: attempts, Last: lastErr}
}

// attemptError carries the broker a failed attempt targeted so the next
// attempt can avoid it.
type attemptError struct {
	broker string
	err    error
}

func (e *attemptError) Error() string { return e.err.Error() }
func (e *attemptError) Unwrap() error { return e.err }

func brokerOf(err error) string {
	var ae *attemptError
	if errors.As(err, &ae) {
		return ae.broker
	}
	return ""
}

func retryable(err error) bool {
	var respErr *protocol.ResponseError
	if errors.As(err, &respErr) {
		return respErr.Retryable()
	}
	return errors.Is(err, remoting.ErrTimeout) ||
		errors.Is(err, remoting.ErrConnClosed) ||
		errors.Is(err, errNoBrokerAddr) ||
		isNetError(err)
}

func isNetError(err error) bool {
	var ne net.Error
	return errors.As(err, &ne)
}

func (p *Producer) sendOnce(msg *message.Message, lastBroker string, batch, oneway bool) (*SendResult, error) {
	// The cluster knows the topic under its namespaced name; route
	// lookup, queue selection and the send header must all use it.
	topic := p.wrapNamespace(msg.Topic)

	route, stale, err := p.routes.Resolve(topic, false)
	if err != nil {
		return nil, err
	}
	if stale {
		slog.Debug("using stale route", "topic", topic)
	}

	queues := writeableQueues(topic, route)
	if len(queues) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoRoute, topic)
	}

	queue, tracked := p.pickQueue(msg, queues, lastBroker)

	addr, ok := p.routes.FindBrokerAddr(queue.BrokerName)
	if !ok || addr == "" {
		if tracked {
			p.faults.Record(queue.BrokerName, false)
		}
		return nil, &attemptError{broker: queue.BrokerName,
			err: fmt.Errorf("%w %s", errNoBrokerAddr, queue.BrokerName)}
	}

	cmd, err := p.buildSendRequest(msg, queue, batch)
	if err != nil {
		if tracked {
			p.faults.Record(queue.BrokerName, true)
		}
		return nil, err
	}

	if oneway {
		err := p.client.InvokeOneway(addr, cmd)
		if tracked {
			p.faults.Record(queue.BrokerName, err == nil)
		}
		if err != nil {
			return nil, &attemptError{broker: queue.BrokerName, err: err}
		}
		return nil, nil
	}

	resp, err := p.client.Invoke(addr, cmd, p.opts.SendTimeout)
	if err != nil {
		if tracked {
			p.faults.Record(queue.BrokerName, false)
		}
		return nil, &attemptError{broker: queue.BrokerName, err: err}
	}

	result, err := p.processSendResponse(msg, queue, resp)
	if tracked {
		p.faults.Record(queue.BrokerName, err == nil)
	}
	if err != nil {
		return nil, &attemptError{broker: queue.BrokerName, err: err}
	}
	return result, nil
}

// pickQueue selects the destination queue, preferring brokers other than
// the one that just failed and brokers whose circuit is closed. When
// every candidate is excluded it falls back to the selector's raw pick:
// sending somewhere beats failing locally.
func (p *Producer) pickQueue(msg *message.Message, queues []message.MessageQueue, lastBroker string) (message.MessageQueue, bool) {
	candidates := queues
	if lastBroker != "" {
		filtered := make([]message.MessageQueue, 0, len(queues))
		for _, q := range queues {
			if q.BrokerName != lastBroker {
				filtered = append(filtered, q)
			}
		}
		if len(filtered) > 0 {
			candidates = filtered
		}
	}

	tried := make(map[string]bool)
	for len(candidates) > 0 {
		q := p.opts.Selector.Select(msg, candidates)
		if p.faults.Available(q.BrokerName) {
			return q, true
		}
		tried[q.BrokerName] = true
		remaining := candidates[:0:0]
		for _, c := range candidates {
			if !tried[c.BrokerName] {
				remaining = append(remaining, c)
			}
		}
		candidates = remaining
	}
	return p.opts.Selector.Select(msg, queues), false
}

// writeableQueues expands the route's queue data into addressable queues,
// ordered by broker name for deterministic selection.
func writeableQueues(topic string, route *protocol.TopicRouteData) []message.MessageQueue {
	qds := make([]*protocol.QueueData, 0, len(route.QueueDatas))
	for _, qd := range route.QueueDatas {
		if qd.Perm.Writeable() && qd.WriteQueueNums > 0 {
			qds = append(qds, qd)
		}
	}
	sort.Slice(qds, func(i, j int) bool { return qds[i].BrokerName < qds[j].BrokerName })

	var queues []message.MessageQueue
	for _, qd := range qds {
		for i := int32(0); i < qd.WriteQueueNums; i++ {
			queues = append(queues, message.MessageQueue{
				Topic:      topic,
				BrokerName: qd.BrokerName,
				QueueID:    i,
			})
		}
	}
	return queues
}

func (p *Producer) buildSendRequest(msg *message.Message, queue message.MessageQueue, batch bool) (*protocol.RemotingCommand, error) {
	body := msg.Body
	sysFlag := int32(0)

	if !batch {
		msg.EnsureUniqueKey()
		if len(body) >= p.opts.CompressOver {
			compressed, err := p.opts.Compressor.Compress(body)
			if err != nil {
				return nil, fmt.Errorf("compress body: %w", err)
			}
			if len(compressed) < len(body) {
				body = compressed
				sysFlag |= message.SysFlagCompressed
			}
		}
	}

	header := protocol.SendMessageRequestHeader{
		ProducerGroup:         p.wrapNamespace(p.opts.GroupName),
		Topic:                 queue.Topic,
		DefaultTopic:          p.opts.CreateTopicKey,
		DefaultTopicQueueNums: p.opts.DefaultTopicQueueNums,
		QueueID:               queue.QueueID,
		SysFlag:               sysFlag,
		BornTimestamp:         time.Now().UnixMilli(),
		Flag:                  msg.Flag,
		Properties:            msg.DumpProperties(),
		UnitMode:              p.opts.UnitMode,
		Batch:                 batch,
	}

	code := protocol.SendMessage
	if batch {
		code = protocol.SendBatchMessage
	}
	return protocol.NewRequest(code, header, body), nil
}

func (p *Producer) processSendResponse(msg *message.Message, queue message.MessageQueue, resp *protocol.RemotingCommand) (*SendResult, error) {
	var status SendStatus
	switch resp.Code {
	case protocol.ResponseSuccess:
		status = SendOK
	case protocol.ResponseFlushDiskTimeout:
		status = SendFlushDiskTimeout
	case protocol.ResponseFlushSlaveTimeout:
		status = SendFlushSlaveTimeout
	case protocol.ResponseSlaveNotAvailable:
		status = SendSlaveNotAvailable
	default:
		return nil, &protocol.ResponseError{Code: resp.Code, Remark: resp.Remark}
	}

	queueOffset, _ := strconv.ParseInt(resp.ExtField("queueOffset"), 10, 64)
	if qid := resp.ExtField("queueId"); qid != "" {
		if id, err := strconv.ParseInt(qid, 10, 32); err == nil {
			queue.QueueID = int32(id)
		}
	}

	msgID := msg.UniqueKey()
	if msgID == "" {
		msgID = resp.ExtField("msgId")
	}

	return &SendResult{
		Status:        status,
		MsgID:         msgID,
		OffsetMsgID:   resp.ExtField("msgId"),
		MessageQueue:  queue,
		QueueOffset:   queueOffset,
		TransactionID: resp.ExtField("transactionId"),
		RegionID:      resp.ExtField("MSG_REGION"),
		TraceOn:       resp.ExtField("TRACE_ON") != "false",
	}, nil
}

func (p *Producer) wrapNamespace(name string) string {
	if p.opts.Namespace == "" || name == "" {
		return name
	}
	return p.opts.Namespace + "%" + name
}

// heartbeatLoop reports this producer's group to every known broker so
// brokers keep its channel registered.
func (p *Producer) heartbeatLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.sendHeartbeats()
		case <-p.stopCh:
			return
		}
	}
}

func (p *Producer) sendHeartbeats() {
	hb := protocol.HeartbeatData{
		ClientID: p.clientID,
		ProducerDataSet: []protocol.ProducerData{
			{GroupName: p.wrapNamespace(p.opts.GroupName)},
		},
	}
	body, err := json.Marshal(hb)
	if err != nil {
		slog.Error("marshal heartbeat", "error", err)
		return
	}

	for _, addr := range p.routes.BrokerAddrs() {
		cmd := protocol.NewCommand(protocol.Heartbeat, nil, body)
		if _, err := p.client.Invoke(addr, cmd, p.opts.SendTimeout); err != nil {
			slog.Debug("heartbeat failed", "broker", addr, "error", err)
		}
	}
}

// routeRefreshLoop keeps cached routes current so sends observe broker
// topology changes without waiting for a failure.
func (p *Producer) routeRefreshLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.opts.RouteRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.ns.Update()
			for _, topic := range p.routes.Topics() {
				if _, _, err := p.routes.Resolve(topic, true); err != nil {
					slog.Debug("route refresh failed", "topic", topic, "error", err)
				}
			}
		case <-p.stopCh:
			return
		}
	}
}

func buildClientID(instance string, unit bool) string {
	if instance == "" {
		instance = strconv.Itoa(os.Getpid())
	}
	id := localIP() + "@" + instance
	if unit {
		id += "@unit"
	}
	return id
}

func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, addr := range addrs {
			if ipn, ok := addr.(*net.IPNet); ok && !ipn.IP.IsLoopback() {
				if v4 := ipn.IP.To4(); v4 != nil {
					return v4.String()
				}
			}
		}
	}
	return "127.0.0.1"
}
