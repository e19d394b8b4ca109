package logging_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cagmero/ARGUS/internal/logging"
)

func TestNewLevels(t *testing.T) {
	cases := []struct {
		name           string
		verbose, quiet bool
		debug, warn    bool
	}{
		{name: "default", debug: false, warn: true},
		{name: "verbose", verbose: true, debug: true, warn: true},
		{name: "quiet", quiet: true, debug: false, warn: false},
		{name: "quiet wins", verbose: true, quiet: true, debug: false, warn: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			log, err := logging.New(tc.verbose, tc.quiet)
			require.NoError(t, err)
			core := log.Desugar().Core()
			require.Equal(t, tc.debug, core.Enabled(zap.DebugLevel))
			require.Equal(t, tc.warn, core.Enabled(zap.WarnLevel))
			require.True(t, core.Enabled(zap.ErrorLevel))
		})
	}
}
