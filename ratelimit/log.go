package ratelimit

import "go.uber.org/zap"

func zapStr(k, v string) zap.Field { return zap.String(k, v) }
