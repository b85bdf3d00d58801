// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// rocketmq-publish sends messages to a RocketMQ topic from the command
// line, reading the body from the -body flag or stdin.
package main

import (
	"bufio"
	"flag"
	"log/slog"
	"os"
	"strings"

	"github.com/absmach/rocketmq/config"
	"github.com/absmach/rocketmq/message"
	"github.com/absmach/rocketmq/producer"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	nameServers := flag.String("namesrv", "", "Name server list (host:port;host:port), overrides config")
	topic := flag.String("topic", "", "Destination topic (required)")
	body := flag.String("body", "", "Message body; reads lines from stdin when empty")
	tags := flag.String("tags", "", "Message tags")
	keys := flag.String("keys", "", "Space-separated message keys")
	key := flag.String("sharding-key", "", "Sharding key for ordered topics")
	oneway := flag.Bool("oneway", false, "Send without waiting for broker acknowledgment")
	flag.Parse()

	if *topic == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.Log)

	opts := cfg.ProducerOptions()
	if *nameServers != "" {
		opts.SetNameServers(strings.Split(*nameServers, ";")...)
	}

	p, err := producer.New(opts)
	if err != nil {
		slog.Error("Failed to create producer", "error", err)
		os.Exit(1)
	}
	if err := p.Start(); err != nil {
		slog.Error("Failed to start producer", "error", err)
		os.Exit(1)
	}
	defer p.Shutdown()

	publish := func(payload string) bool {
		msg := message.NewMessage(*topic, []byte(payload))
		if *tags != "" {
			msg.WithTags(*tags)
		}
		if *keys != "" {
			msg.WithKeys(strings.Fields(*keys)...)
		}
		if *key != "" {
			msg.WithShardingKey(*key)
		}

		if *oneway {
			if err := p.SendOneway(msg); err != nil {
				slog.Error("Oneway send failed", "topic", *topic, "error", err)
				return false
			}
			return true
		}

		result, err := p.Send(msg)
		if err != nil {
			slog.Error("Send failed", "topic", *topic, "error", err)
			return false
		}
		slog.Info("Message sent",
			"topic", *topic,
			"status", result.Status.String(),
			"msg_id", result.MsgID,
			"queue", result.MessageQueue.String(),
			"offset", result.QueueOffset)
		return true
	}

	if *body != "" {
		if !publish(*body) {
			os.Exit(1)
		}
		return
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	failed := false
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			if !publish(line) {
				failed = true
			}
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Error("Reading stdin failed", "error", err)
		os.Exit(1)
	}
	if failed {
		os.Exit(1)
	}
}

func setupLogging(cfg config.LogConfig) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}
