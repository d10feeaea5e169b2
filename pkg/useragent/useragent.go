package useragent

import (
	"fmt"
	"runtime"

	"github.com/docker/agent-relay/pkg/version"
)

var Header = fmt.Sprintf("AgentRelay/%s (%s; %s)", version.Version, runtime.GOOS, runtime.GOARCH)
