package config

import (
	"sort"
	"strings"

	logx "digestbot/pkg/logx"
)

// changeSet accumulates the sections a reload touched plus log fields
// that are safe to emit. Token values never land in the fields, only
// whether one is set.
type changeSet struct {
	sections []string
	attrs    []logx.Field
}

func (c *changeSet) add(section string, attrs ...logx.Field) {
	c.sections = append(c.sections, section)
	c.attrs = append(c.attrs, attrs...)
}

// SummarizeChange compares two configs section by section and returns
// the sorted names of changed sections with loggable attributes for the
// new values.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	trim := strings.TrimSpace
	set := func(s string) bool { return trim(s) != "" }

	var cs changeSet

	og, ng := oldCfg.GitHub, newCfg.GitHub
	if set(og.Token) != set(ng.Token) || trim(og.Repository) != trim(ng.Repository) ||
		trim(og.APIURL) != trim(ng.APIURL) || og.RatePerSec != ng.RatePerSec {
		cs.add("github",
			logx.String("github.repository", trim(ng.Repository)),
			logx.Bool("github.token_set", set(ng.Token)),
			logx.Int("github.rate_per_sec", ng.RatePerSec),
		)
	}

	oa, na := oldCfg.AI, newCfg.AI
	if set(oa.Token) != set(na.Token) || trim(oa.APIURL) != trim(na.APIURL) {
		cs.add("ai",
			logx.Bool("ai.token_set", set(na.Token)),
			logx.String("ai.api_url", trim(na.APIURL)),
		)
	}

	// Slack token presence flips the delivery channel, so it matters
	// even though the value itself stays secret.
	osl, nsl := oldCfg.Slack, newCfg.Slack
	if set(osl.Token) != set(nsl.Token) || trim(osl.ChannelID) != trim(nsl.ChannelID) ||
		trim(osl.APIURL) != trim(nsl.APIURL) {
		cs.add("slack",
			logx.Bool("slack.token_set", set(nsl.Token)),
			logx.Bool("slack.channel_set", set(nsl.ChannelID)),
		)
	}

	od, nd := oldCfg.Digest, newCfg.Digest
	if od.HoursBack != nd.HoursBack || trim(od.Template) != trim(nd.Template) {
		cs.add("digest",
			logx.Int("digest.hours_back", nd.HoursBack),
			logx.Bool("digest.template_set", set(nd.Template)),
		)
	}

	ol, nl := oldCfg.Logging, newCfg.Logging
	if ol.Level != nl.Level || ol.Console != nl.Console ||
		ol.File.Enabled != nl.File.Enabled || trim(ol.File.Path) != trim(nl.File.Path) {
		cs.add("logging",
			logx.String("logx.level", nl.Level),
			logx.Bool("logx.console", nl.Console),
			logx.Bool("logx.file_enabled", nl.File.Enabled),
		)
	}

	osc, nsc := oldCfg.Schedule, newCfg.Schedule
	if osc.Enabled != nsc.Enabled || trim(osc.Spec) != trim(nsc.Spec) ||
		trim(osc.Timezone) != trim(nsc.Timezone) || trim(osc.RunTimeout) != trim(nsc.RunTimeout) {
		cs.add("schedule",
			logx.Bool("schedule.enabled", nsc.Enabled),
			logx.String("schedule.spec", trim(nsc.Spec)),
			logx.String("schedule.timezone", trim(nsc.Timezone)),
		)
	}

	ost := storageView(oldCfg.Storage)
	nst := storageView(newCfg.Storage)
	if ost != nst {
		cs.add("storage",
			logx.String("storage.driver", nst.driver),
			logx.Bool("storage.path_set", nst.pathSet),
			logx.String("storage.busy_timeout", nst.busy),
		)
	}

	op, np := oldCfg.Pprof, newCfg.Pprof
	if op.Enabled != np.Enabled || trim(op.Addr) != trim(np.Addr) ||
		trim(op.Prefix) != trim(np.Prefix) || op.AllowInsecure != np.AllowInsecure ||
		trim(op.ReadTimeout) != trim(np.ReadTimeout) ||
		trim(op.WriteTimeout) != trim(np.WriteTimeout) ||
		trim(op.IdleTimeout) != trim(np.IdleTimeout) ||
		set(op.Token) != set(np.Token) {
		cs.add("pprof",
			logx.Bool("pprof.enabled", np.Enabled),
			logx.String("pprof.addr", trim(np.Addr)),
			logx.Bool("pprof.token_set", set(np.Token)),
		)
	}

	sort.Strings(cs.sections)
	return cs.sections, cs.attrs
}

type comparableStorage struct {
	driver  string
	busy    string
	pathSet bool
	history int
}

// storageView flattens the optional storage section into comparable
// fields; a nil section means storage is disabled.
func storageView(sc *StorageConfig) comparableStorage {
	if sc == nil {
		return comparableStorage{}
	}
	return comparableStorage{
		driver:  strings.TrimSpace(sc.Driver),
		busy:    strings.TrimSpace(sc.BusyTimeout),
		pathSet: strings.TrimSpace(sc.Path) != "",
		history: sc.HistorySize,
	}
}
