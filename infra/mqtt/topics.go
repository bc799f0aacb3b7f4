package mqtt

import "strings"

// Command names accepted on <base>/<session>/set/<command>.
const (
	CmdStep   = "step"
	CmdReset  = "reset"
	CmdCurve  = "curve"
	CmdConfig = "config"
)

// CommandTopic is the topic a controller listens on for cmd.
func CommandTopic(base, sessionID, cmd string) string {
	return base + "/" + sessionID + "/set/" + cmd
}

// CommandFilter matches every command of every session.
func CommandFilter(base string) string { return base + "/+/set/+" }

// StateTopic carries the retained latest step of a session.
func StateTopic(base, sessionID string) string { return base + "/" + sessionID + "/state" }

// ResultTopic carries the reply to a successful command.
func ResultTopic(base, sessionID string) string { return base + "/" + sessionID + "/result" }

// ErrorTopic carries the reply to a failed command.
func ErrorTopic(base, sessionID string) string { return base + "/" + sessionID + "/error" }

// ParseCommandTopic splits a command topic into session id and command.
func ParseCommandTopic(base, topic string) (sessionID, cmd string, ok bool) {
	rest, found := strings.CutPrefix(topic, base+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[1] != "set" || parts[0] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[0], parts[2], true
}
