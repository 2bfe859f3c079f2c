// Package registration announces this node on the messaging fabric.
//
// Registration::Agentlist sends a JSON Message with the node identity and the
// agents listed in plugin.agentlist.agents to <topicprefix>.registration.agent
// every registerinterval seconds. A registerinterval of 0, or
// Registration::Disabled, turns the announcements off.
package registration
