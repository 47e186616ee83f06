package redisutils

const (
	REDIS_KEY_LAST_SNAPSHOT     string = "instanceID:%s:lastSnapshot"
	REDIS_KEY_LAST_REFRESHED    string = "instanceID:%s:lastRefreshed"
	REDIS_KEY_EXPANDED_FILES    string = "instanceID:%s:expandedFiles"
	REDIS_KEY_SELECTED_NODE     string = "instanceID:%s:selectedNode"
	REDIS_KEY_FILE_AUDIT_STATUS string = "instanceID:%s:fileAuditStatus"
)
