package service

// status 直接输出 systemctl status 的原始内容
var statusCmd = newVerbCmd("status", "显示代理服务的 systemd 状态")
