package session

import "go.uber.org/zap"

func fieldErr(err error) zap.Field       { return zap.Error(err) }
func fieldStr(k, v string) zap.Field     { return zap.String(k, v) }
