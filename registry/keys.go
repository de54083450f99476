package registry

import (
	"fmt"
	"strings"
)

// Key layout in the underlying store:
//
//	session:{user}:{session}:{task}   canonical record (JSON, own TTL)
//	user_sessions:{user}              set of "session:task" members
//	task_mapping:{user}:{session}     set of task ids (own TTL)
//	task:{task}                       task status (JSON, own TTL)
//
// All three ids are assumed globally unique within their namespace, so the
// composite keys are collision free by construction. User ids must not
// contain ':'; session and task ids are split on the first ':' only, which
// tolerates separators in the task id.
const (
	recordPrefix      = "session:"
	userSessionPrefix = "user_sessions:"
	taskMappingPrefix = "task_mapping:"
	taskPrefix        = "task:"
)

func recordKey(userID, sessionID, taskID string) string {
	return fmt.Sprintf("%s%s:%s:%s", recordPrefix, userID, sessionID, taskID)
}

func userSessionsKey(userID string) string {
	return userSessionPrefix + userID
}

func taskMappingKey(userID, sessionID string) string {
	return fmt.Sprintf("%s%s:%s", taskMappingPrefix, userID, sessionID)
}

func taskKey(taskID string) string {
	return taskPrefix + taskID
}

// sessionTaskMember formats the user_sessions set member for a record.
func sessionTaskMember(sessionID, taskID string) string {
	return sessionID + ":" + taskID
}

// splitSessionTask parses a user_sessions member back into its ids.
func splitSessionTask(member string) (sessionID, taskID string, ok bool) {
	return strings.Cut(member, ":")
}

// userFromSessionsKey extracts the user id from a user_sessions:{user} key.
func userFromSessionsKey(key string) (string, bool) {
	return strings.CutPrefix(key, userSessionPrefix)
}

// idsFromMappingKey extracts user and session ids from a
// task_mapping:{user}:{session} key.
func idsFromMappingKey(key string) (userID, sessionID string, ok bool) {
	rest, found := strings.CutPrefix(key, taskMappingPrefix)
	if !found {
		return "", "", false
	}
	return strings.Cut(rest, ":")
}
