package metrics

import (
	"runtime"
	"runtime/debug"

	"github.com/prometheus/client_golang/prometheus"
)

// buildLabels 从二进制嵌入的构建信息中读取 VCS 修订号；version 为空时回退到模块版本.
func buildLabels(version string) (ver, revision string) {
	ver, revision = version, "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ver, revision
	}
	if ver == "" && info.Main.Version != "" {
		ver = info.Main.Version
	}
	dirty := false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if dirty && revision != "unknown" {
		revision += "-dirty"
	}
	return ver, revision
}

// RegisterBuildInfo 注册 quant_build_info 常量指标，值恒为 1，信息全部在标签里。
// 重复调用无效果.
func (m *Metrics) RegisterBuildInfo(serviceName, version string) {
	if m == nil || m.BuildInfo != nil {
		return
	}
	if serviceName == "" {
		serviceName = "unknown"
	}
	ver, revision := buildLabels(version)
	if ver == "" {
		ver = "unknown"
	}

	m.BuildInfo = m.NewGaugeVec(prometheus.GaugeOpts{
		Name: "quant_build_info",
		Help: "Build metadata of the running quant service",
	}, []string{"service", "version", "revision", "go_version"})
	m.BuildInfo.WithLabelValues(serviceName, ver, revision, runtime.Version()).Set(1)
}
