// Package servo implements a realtime Cartesian/joint servo controller core
// for articulated robot arms. Given a live stream of end-effector twist
// commands or direct joint velocity commands, the core produces, at a fixed
// control period, an outgoing joint trajectory point that advances the robot
// toward the commanded motion while honoring joint limits, decelerating near
// kinematic singularities, and scaling velocity for imminent collisions.
package servo
