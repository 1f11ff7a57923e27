package bridge

import (
	"fmt"
	"strings"

	"github.com/nextabc-lab/swap/gateway"
)

const (
	prefixNodes    = "$SWAP/nodes/"
	prefixEvents   = "$SWAP/events/"
	prefixValues   = "$SWAP/values/"
	prefixRequests = "$SWAP/requests/"
	prefixReplies  = "$SWAP/replies/"

	TopicSubscribeEvents = prefixEvents + "#"
	TopicSubscribeValues = prefixValues + "#"
)

func topicOfEvents(nodeId string, eventType gateway.EventType) string {
	return prefixEvents + nodeId + "/" + strings.ToLower(eventType.String())
}

func topicOfValues(nodeId string, address byte, endpoint string) string {
	return fmt.Sprintf(prefixValues+"%s/%02X/%s", nodeId, address, endpoint)
}

func topicOfRequestSend(executorNodeId string, seqId uint32, callerNodeId string) string {
	return fmt.Sprintf(prefixRequests+"%s/%d/%s", executorNodeId, seqId, callerNodeId)
}

func topicOfRequestListen(nodeId string) string {
	return fmt.Sprintf(prefixRequests+"%s/+/+", nodeId)
}

func topicOfRepliesSend(executorNodeId string, seqId string, callerNodeId string) string {
	return fmt.Sprintf(prefixReplies+"%s/%s/%s", callerNodeId, seqId, executorNodeId)
}

func topicOfOffline(nodeId string) string {
	return prefixNodes + "offline/" + nodeId
}

// 请求Topic: $SWAP/requests/{executor}/{seq}/{caller}
func unwrapRequestTopic(topic string) (seqId string, callerNodeId string, ok bool) {
	if !strings.HasPrefix(topic, prefixRequests) {
		return "", "", false
	}
	parts := strings.Split(topic[len(prefixRequests):], "/")
	if 3 != len(parts) || "" == parts[1] || "" == parts[2] {
		return "", "", false
	}
	return parts[1], parts[2], true
}
