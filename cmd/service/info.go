package service

var infoCmd = newVerbCmd("info", "显示代理连接信息")
