package main

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"handset-go/bus"
	"handset-go/services/handset"
	"handset-go/types"
)

// metrics mirrors the handset's published comm and alarm state.
type metrics struct {
	reg     *prometheus.Registry
	counts  *prometheus.GaugeVec
	linkUp  prometheus.Gauge
	alarm   prometheus.Gauge
	alarmHz prometheus.Gauge
	frames  prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{
		reg: prometheus.NewRegistry(),
		counts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "handset_comm_events",
			Help: "Radio request outcomes since start.",
		}, []string{"kind"}),
		linkUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "handset_link_up",
			Help: "1 when the last remote request resolved.",
		}),
		alarm: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "handset_alarm_active",
			Help: "1 while an alarm is sounding.",
		}),
		alarmHz: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "handset_alarm_tone_hz",
			Help: "Tone of the active alarm.",
		}),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "handset_frames_total",
			Help: "Display frames published.",
		}),
	}
	m.reg.MustRegister(m.counts, m.linkUp, m.alarm, m.alarmHz, m.frames)
	return m
}

func (m *metrics) serve(addr string, log *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))
	log.Infof("metrics on %s", addr)
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Errorf("metrics server: %v", err)
		}
	}()
}

func (m *metrics) observeComm(cs types.CommStatus) {
	m.counts.WithLabelValues("requests").Set(float64(cs.Requests))
	m.counts.WithLabelValues("replies").Set(float64(cs.Replies))
	m.counts.WithLabelValues("timeouts").Set(float64(cs.Timeouts))
	m.counts.WithLabelValues("failures").Set(float64(cs.Failures))
	m.counts.WithLabelValues("abandoned").Set(float64(cs.Abandoned))
	m.counts.WithLabelValues("late").Set(float64(cs.Late))
	if cs.Link == types.LinkUp {
		m.linkUp.Set(1)
	} else {
		m.linkUp.Set(0)
	}
}

func (m *metrics) observeAlarm(a types.AlarmState) {
	if a.Active {
		m.alarm.Set(1)
		m.alarmHz.Set(float64(a.ToneHz))
		return
	}
	m.alarm.Set(0)
	m.alarmHz.Set(0)
}

func (m *metrics) run(ctx context.Context, conn *bus.Connection) {
	comm := conn.Subscribe(handset.TopicComm)
	al := conn.Subscribe(handset.TopicAlarm)
	frames := conn.Subscribe(handset.TopicFrame)
	defer conn.Disconnect()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-comm.Channel():
			if cs, ok := msg.Payload.(types.CommStatus); ok {
				m.observeComm(cs)
			}
		case msg := <-al.Channel():
			if a, ok := msg.Payload.(types.AlarmState); ok {
				m.observeAlarm(a)
			}
		case <-frames.Channel():
			m.frames.Inc()
		}
	}
}
