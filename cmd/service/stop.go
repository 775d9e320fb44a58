package service

var stopCmd = newVerbCmd("stop", "停止代理服务")
