package connectors

const (
	TopicConnStatus  = "conn.status"
	TopicMuscle      = "myo.muscle"
	TopicInertial    = "myo.inertial"
	TopicPose        = "myo.pose"
	TopicLimb        = "myo.limb"
	TopicDecodeError = "myo.decode_error"
)

// SensorTopics lists every topic carrying band events.
var SensorTopics = []string{TopicMuscle, TopicInertial, TopicPose, TopicLimb, TopicDecodeError}
