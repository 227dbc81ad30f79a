package commands

import (
	"context"
	"strings"
)

const keywordHelp = `【关键词匹配】：提醒
[@机器人][时间]提醒[被提醒人][消息]
例如“22.35提醒我和@用户1 去吃夜宵”设置单次提醒
例如“每天8:00提醒我早安~”设置循环提醒
可以用“all”或者“所有人”代替全体成员。

支持的时间格式：14:30、2026-3-15 9:00、明天下午3点、下周一9点、
半小时后、两个小时后、国庆节、每天13:30、每周三14:00、每月15号9:30`

// HelpCommand lists every public command followed by the keyword syntax.
func (m *Router) HelpCommand() Command {
	return Command{
		Name:        "help",
		Aliases:     []string{"h", "帮助"},
		Description: "显示帮助",
		Usage:       "/help",
		Handle: func(ctx context.Context, req *Request) error {
			var b strings.Builder
			b.WriteString("【命令匹配】\n")
			for _, c := range m.Commands() {
				if c.Access == AccessOwnerOnly || c.Name == "help" {
					continue
				}
				b.WriteString(c.Usage)
				b.WriteString("  ")
				b.WriteString(c.Description)
				b.WriteString("\n")
			}
			b.WriteString("\n")
			b.WriteString(keywordHelp)
			return req.Say(ctx, b.String())
		},
	}
}
