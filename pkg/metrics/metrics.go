// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// switchboardNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	switchboardNamespace = "switchboard"

	// 以下为当前使用的通用标签名。
	actionLabelName = "action"
	statusLabelName = "status"
	typeLabelName   = "type"
	resultLabelName = "result"

	// 标签取值。
	StatusOK      = "ok"
	ResultOK      = "ok"
	ResultDropped = "dropped"
)

var (
	// buckets 为请求耗时直方图的桶划分，单位为毫秒。
	// 实际桶分布为：
	// [0.0625 0.125 0.25 0.5 1 2 4 8 16 32 64 128 256 512 1024 2048]
	buckets = prometheus.ExponentialBuckets(0.0625, 2, 16)

	registerOnce     sync.Once
	metricRegisterer prometheus.Registerer
	metricGatherer   prometheus.Gatherer
)

// GetRegisterer 返回当前用于注册指标的 Registerer。
// 如果尚未通过 Register 显式设置，则返回 prometheus.DefaultRegisterer。
func GetRegisterer() prometheus.Registerer {
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// Register 注册当前定义的所有指标，重复调用只生效一次。
// r 同时实现 prometheus.Gatherer 时（例如 *prometheus.Registry），Handler 将从 r 采集。
func Register(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(HubSessions)
		r.MustRegister(HubConnections)
		r.MustRegister(HubRequestsTotal)
		r.MustRegister(HubRequestLatency)
		r.MustRegister(HubDeliveriesTotal)
		r.MustRegister(HubEvictionsTotal)
		metricRegisterer = r
		if g, ok := r.(prometheus.Gatherer); ok {
			metricGatherer = g
		}
	})
}

// NewRegistry 返回一个附带进程与 Go 运行时采集器的 Registry。
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewGoCollector())
	return registry
}

// Handler 返回暴露已注册指标的 HTTP Handler。
func Handler() http.Handler {
	if metricGatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(metricGatherer, promhttp.HandlerOpts{})
}
